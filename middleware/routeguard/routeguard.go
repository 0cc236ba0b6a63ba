package routeguard

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
	auth "github.com/gram-panchayat/go-portal-auth"
)

const (
	defaultContextKey       = "session"
	defaultRejectedRouteKey = "rejected_route"
	defaultRejectedRouteTTL = 5 * time.Minute
)

// Config for the route guard middleware
type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(router.Context) bool
	// Store is required
	Store *auth.SessionStore
	// Routes defaults to auth.PortalRoutes(LoginPath)
	Routes *auth.RouteTable
	// Guard, when set, is used for every request instead of Routes
	Guard auth.Guard
	// MinimumRole, when set and Guard is not, gates every request on the
	// staff role hierarchy
	MinimumRole auth.Role
	LoginPath   string
	// ContextKey is the Locals key the session is stored under
	ContextKey       string
	RejectedRouteKey string
	RejectedRouteTTL time.Duration
	// PendingHandler renders the neutral loading state
	PendingHandler router.HandlerFunc
	// RedirectHandler overrides the redirect response
	RedirectHandler func(ctx router.Context, verdict auth.Verdict) error
	Logger          auth.Logger
}

// GetDefaultConfig fills unset fields
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Store == nil {
		panic("AUTH: route guard configuration: Store is required.")
	}

	if cfg.LoginPath == "" {
		cfg.LoginPath = auth.DefaultLoginPath
	}

	if cfg.Routes == nil {
		cfg.Routes = auth.PortalRoutes(cfg.LoginPath)
	}

	if cfg.Guard == nil && cfg.MinimumRole != "" {
		if !cfg.MinimumRole.IsValid() {
			panic("AUTH: route guard configuration: unknown MinimumRole " + string(cfg.MinimumRole))
		}
		cfg.Guard = auth.NewMinimumRoleGuard(cfg.LoginPath, cfg.MinimumRole)
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = defaultContextKey
	}

	if cfg.RejectedRouteKey == "" {
		cfg.RejectedRouteKey = defaultRejectedRouteKey
	}

	if cfg.RejectedRouteTTL <= 0 {
		cfg.RejectedRouteTTL = defaultRejectedRouteTTL
	}

	if cfg.PendingHandler == nil {
		cfg.PendingHandler = func(ctx router.Context) error {
			ctx.SetHeader("Cache-Control", "no-store")
			ctx.SetHeader("Retry-After", "1")
			return ctx.JSON(router.StatusOK, map[string]any{
				"status":  "loading",
				"success": false,
			})
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}

	if cfg.RedirectHandler == nil {
		cfg.RedirectHandler = cfg.defaultRedirect
	}

	return cfg
}

// New evaluates the guard for each request against the live store
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			state := cfg.Store.State()
			guard := cfg.Guard
			if guard == nil {
				guard = cfg.Routes.GuardFor(ctx.Path())
			}

			verdict := guard.Check(state)
			switch verdict.Decision {
			case auth.DecisionAllow:
				stdCtx := auth.WithSessionStore(ctx.Context(), cfg.Store)
				if state.Present() {
					ctx.Locals(cfg.ContextKey, state.Session)
					stdCtx = auth.WithSession(stdCtx, state.Session)
				}
				ctx.SetContext(stdCtx)
				return ctx.Next()
			case auth.DecisionPending:
				return cfg.PendingHandler(ctx)
			default:
				cfg.Logger.Info("route guard redirect",
					"path", ctx.OriginalURL(),
					"reason", verdict.Reason,
				)
				return cfg.RedirectHandler(ctx, verdict)
			}
		}
	}
}

func (cfg Config) defaultRedirect(ctx router.Context, verdict auth.Verdict) error {
	target := verdict.RedirectTo
	if target == "" {
		target = cfg.LoginPath
	}

	if ctx.Path() != target {
		ctx.Cookie(&router.Cookie{
			Name:     cfg.RejectedRouteKey,
			Value:    ctx.OriginalURL(),
			Expires:  time.Now().Add(cfg.RejectedRouteTTL),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}

	statusCode := http.StatusSeeOther
	if ctx.Method() == http.MethodGet {
		statusCode = http.StatusFound
	}
	return ctx.Redirect(target, statusCode)
}

// RejectedRoute returns the route the visitor was turned away from and
// deletes the cookie, or def when there is none.
func RejectedRoute(ctx router.Context, key, def string) string {
	if key == "" {
		key = defaultRejectedRouteKey
	}
	r := ctx.Cookies(key)
	if r == "" {
		return def
	}
	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
	return r
}

// SessionFromLocals returns the session stored by the middleware
func SessionFromLocals(ctx router.Context, key string) (auth.Session, bool) {
	if key == "" {
		key = defaultContextKey
	}
	session, ok := ctx.Locals(key).(auth.Session)
	return session, ok && !session.IsZero()
}
