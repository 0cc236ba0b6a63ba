package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	auth "github.com/gram-panchayat/go-portal-auth"
)

// Authorized sends bearer requests for the session held by the store. A
// rejected bearer credential clears the store and fires the invalidation
// callback, whichever screen made the call.
type Authorized struct {
	baseURL   string
	timeout   time.Duration
	store     *auth.SessionStore
	logger    auth.Logger
	onInvalid func(ctx context.Context, loginPath string)
	loginPath string
}

// AuthorizedOption customizes Authorized
type AuthorizedOption func(*Authorized)

// OnSessionInvalid sets the callback run after the store is cleared, usually
// a redirect to loginPath.
func OnSessionInvalid(fn func(ctx context.Context, loginPath string)) AuthorizedOption {
	return func(a *Authorized) {
		a.onInvalid = fn
	}
}

// WithAuthorizedLogger sets the logger
func WithAuthorizedLogger(logger auth.Logger) AuthorizedOption {
	return func(a *Authorized) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthorized returns a requester bound to store
func NewAuthorized(cfg auth.Config, store *auth.SessionStore, opts ...AuthorizedOption) *Authorized {
	a := &Authorized{
		baseURL:   strings.TrimRight(cfg.GetBaseURL(), "/"),
		timeout:   cfg.GetRequestTimeout(),
		store:     store,
		logger:    auth.NopLogger(),
		loginPath: cfg.GetLoginPath(),
	}
	if a.timeout <= 0 {
		a.timeout = auth.DefaultOptions().RequestTimeout
	}
	if a.loginPath == "" {
		a.loginPath = auth.DefaultLoginPath
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Do sends method path with the bearer token and decodes the JSON answer
// into out. body may be nil.
func (a *Authorized) Do(ctx context.Context, method, path string, body, out any) error {
	session, ok := a.store.Current()
	if !ok {
		return auth.ErrSessionRequired
	}

	timeout := a.timeout
	if err := ctx.Err(); err != nil {
		return auth.NewNetworkError(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			if remaining <= 0 {
				return auth.NewNetworkError(context.DeadlineExceeded)
			}
			timeout = remaining
		}
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(a.baseURL + path)
	agent.Timeout(timeout)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+session.Token)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if body != nil {
		agent.JSON(body)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return auth.NewNetworkError(err)
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return auth.NewNetworkError(errors.Join(errs...))
	}

	if bearerRejected(status, raw) {
		return a.invalidate(ctx, status)
	}

	if status >= http.StatusBadRequest {
		var env envelope
		return decode(path, status, raw, &env, &env, a.logger)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return malformed()
		}
	}
	return nil
}

// Profile fetches the citizen profile for the held session
func (a *Authorized) Profile(ctx context.Context) (auth.CitizenIdentity, error) {
	var out struct {
		envelope
		User *citizenPayload `json:"user"`
	}
	if err := a.Do(ctx, http.MethodGet, PathProfile, nil, &out); err != nil {
		return auth.CitizenIdentity{}, err
	}
	if out.User == nil {
		return auth.CitizenIdentity{}, malformed()
	}
	a.logger.Debug("profile loaded", "payload", print.MaybePrettyJSON(out.User))
	return out.User.identity(), nil
}

func (a *Authorized) invalidate(ctx context.Context, status int) error {
	a.logger.Warn("bearer credential rejected, clearing session", "status", status)
	if err := a.store.Clear(ctx); err != nil {
		a.logger.Error("failed to clear rejected session", "error", err)
	}
	if a.onInvalid != nil {
		a.onInvalid(ctx, a.loginPath)
	}

	clone := auth.ErrSessionInvalid.Clone()
	if clone == nil {
		return auth.ErrSessionInvalid
	}
	return clone.WithMetadata(map[string]any{
		"status":     status,
		"login_path": a.loginPath,
	})
}

// bearerRejected reports a response refusing the token itself. flask-jwt
// answers 401 for missing or expired tokens and 422 with a msg field for
// malformed ones.
func bearerRejected(status int, raw []byte) bool {
	switch status {
	case http.StatusUnauthorized:
		return true
	case http.StatusUnprocessableEntity:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return false
		}
		return env.Msg != "" && env.Message == ""
	default:
		return false
	}
}
