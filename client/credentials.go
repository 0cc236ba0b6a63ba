package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/gram-panchayat/go-portal-auth"
)

const (
	PathSendCode   = "/auth/send-otp"
	PathVerifyCode = "/auth/verify-otp"
	PathAdminLogin = "/auth/admin/login"
	PathProfile    = "/auth/profile"
)

// Credentials is the HTTP CredentialClient for the portal backend. Every
// call is a single request: no retries happen here.
type Credentials struct {
	baseURL string
	timeout time.Duration
	logger  auth.Logger
}

var _ auth.CredentialClient = (*Credentials)(nil)

// Option customizes a Credentials client
type Option func(*Credentials)

// WithLogger sets the client logger
func WithLogger(logger auth.Logger) Option {
	return func(c *Credentials) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout overrides the per request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Credentials) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewCredentials builds a client from cfg
func NewCredentials(cfg auth.Config, opts ...Option) *Credentials {
	c := &Credentials{
		baseURL: strings.TrimRight(cfg.GetBaseURL(), "/"),
		timeout: cfg.GetRequestTimeout(),
		logger:  auth.NopLogger(),
	}
	if c.timeout <= 0 {
		c.timeout = auth.DefaultOptions().RequestTimeout
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type sendCodeRequest struct {
	Mobile string `json:"mobile"`
}

type verifyCodeRequest struct {
	Mobile   string `json:"mobile"`
	OTP      string `json:"otp"`
	FullName string `json:"full_name,omitempty"`
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// envelope holds the fields shared by every backend response. Code is the
// structured rejection reason newer backends send next to the message.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	// flask-jwt-extended reports bearer failures in msg
	Msg string `json:"msg"`
}

type sendCodeResponse struct {
	envelope
	DevOTP string `json:"dev_otp"`
}

type citizenPayload struct {
	ID       wireID `json:"id"`
	FullName string `json:"full_name"`
	Mobile   string `json:"mobile"`
}

type adminPayload struct {
	ID         wireID `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type verifyCodeResponse struct {
	envelope
	Token     string          `json:"token"`
	User      *citizenPayload `json:"user"`
	IsNewUser bool            `json:"is_new_user"`
}

type adminLoginResponse struct {
	envelope
	Token string        `json:"token"`
	Admin *adminPayload `json:"admin"`
}

// wireID accepts numeric and string account IDs.
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*w = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*w = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*w = wireID(n.String())
	return nil
}

func (p citizenPayload) identity() auth.CitizenIdentity {
	return auth.CitizenIdentity{
		AccountID: string(p.ID),
		Mobile:    p.Mobile,
		FullName:  p.FullName,
	}
}

func (p adminPayload) identity() auth.AdminIdentity {
	return auth.AdminIdentity{
		AccountID:  string(p.ID),
		Username:   p.Username,
		FullName:   p.FullName,
		Email:      p.Email,
		Department: p.Department,
		UserRole:   auth.Role(p.Role),
	}
}

// RequestCode implements auth.CredentialClient.
func (c *Credentials) RequestCode(ctx context.Context, mobile string) (auth.CodeDispatch, error) {
	var out sendCodeResponse
	if err := c.post(ctx, PathSendCode, sendCodeRequest{Mobile: mobile}, &out, &out.envelope); err != nil {
		return auth.CodeDispatch{}, err
	}
	return auth.CodeDispatch{Accepted: out.Success, DevCode: out.DevOTP}, nil
}

// VerifyCode implements auth.CredentialClient. fullName is only sent when
// set.
func (c *Credentials) VerifyCode(ctx context.Context, mobile, code, fullName string) (auth.Grant, error) {
	var out verifyCodeResponse
	req := verifyCodeRequest{Mobile: mobile, OTP: code, FullName: strings.TrimSpace(fullName)}
	if err := c.post(ctx, PathVerifyCode, req, &out, &out.envelope); err != nil {
		return auth.Grant{}, err
	}
	if out.Token == "" || out.User == nil {
		return auth.Grant{}, malformed()
	}

	identity := out.User.identity()
	if identity.Mobile == "" {
		identity.Mobile = mobile
	}
	return auth.Grant{Identity: identity, Token: out.Token}, nil
}

// AdminLogin implements auth.CredentialClient.
func (c *Credentials) AdminLogin(ctx context.Context, username, password string) (auth.Grant, error) {
	var out adminLoginResponse
	if err := c.post(ctx, PathAdminLogin, adminLoginRequest{Username: username, Password: password}, &out, &out.envelope); err != nil {
		return auth.Grant{}, err
	}
	if out.Token == "" || out.Admin == nil {
		return auth.Grant{}, malformed()
	}
	return auth.Grant{Identity: out.Admin.identity(), Token: out.Token}, nil
}

func (c *Credentials) post(ctx context.Context, path string, body, out any, env *envelope) error {
	timeout, err := c.budget(ctx)
	if err != nil {
		return err
	}

	agent := fiber.Post(c.baseURL + path)
	agent.Timeout(timeout)
	agent.JSON(body)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return auth.NewNetworkError(err)
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		c.logger.Warn("backend request failed", "path", path, "error", errs[0])
		return auth.NewNetworkError(errors.Join(errs...))
	}

	return decode(path, status, raw, out, env, c.logger)
}

// budget caps the request timeout at the context deadline.
func (c *Credentials) budget(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, auth.NewNetworkError(err)
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, auth.NewNetworkError(context.DeadlineExceeded)
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, nil
}

// decode maps a backend answer to either out or a classified error.
func decode(path string, status int, raw []byte, out any, env *envelope, logger auth.Logger) error {
	jsonErr := json.Unmarshal(raw, out)

	if status >= http.StatusInternalServerError && jsonErr != nil {
		return auth.NewNetworkError(errors.New("backend returned " + strconv.Itoa(status)))
	}

	if status >= http.StatusBadRequest || (jsonErr == nil && !env.Success) {
		message := env.Message
		if message == "" {
			message = env.Msg
		}
		if message == "" {
			message = http.StatusText(status)
		}
		reason := auth.ReasonFromWire(env.Code, message)
		logger.Debug("backend rejected request", "path", path, "status", status, "reason", reason)
		return auth.NewRejectedError(reason, message, status)
	}

	if jsonErr != nil {
		return malformed()
	}
	return nil
}

func malformed() error {
	return auth.NewRejectedError(auth.ReasonOther, "Unexpected response from server", http.StatusBadGateway)
}
