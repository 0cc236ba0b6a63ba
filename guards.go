package auth

// DefaultLoginPath is the login entry point guards redirect to
const DefaultLoginPath = "/login"

// AdminRoles are the staff roles allowed into the admin console
var AdminRoles = GetAllRoles()

// Decision is the outcome of a guard check
type Decision int

const (
	// DecisionPending means the session is not resolved yet; render a neutral
	// loading state and check again.
	DecisionPending Decision = iota
	DecisionAllow
	DecisionRedirect
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

const (
	ReasonUnresolved      = "session_unresolved"
	ReasonUnauthenticated = "unauthenticated"
	ReasonCitizenDenied   = "citizen_not_allowed"
	ReasonRoleDenied      = "role_not_allowed"
)

// Verdict is returned by every guard
type Verdict struct {
	Decision   Decision
	RedirectTo string
	Reason     string
}

// Allowed reports DecisionAllow
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

func allow() Verdict {
	return Verdict{Decision: DecisionAllow}
}

func pending() Verdict {
	return Verdict{Decision: DecisionPending, Reason: ReasonUnresolved}
}

func redirect(loginPath, reason string) Verdict {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return Verdict{Decision: DecisionRedirect, RedirectTo: loginPath, Reason: reason}
}

// Guard is a pure predicate over the session state
type Guard interface {
	Check(state SessionState) Verdict
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(state SessionState) Verdict

// Check implements Guard.
func (f GuardFunc) Check(state SessionState) Verdict {
	if f == nil {
		return allow()
	}
	return f(state)
}

// PublicGuard allows everyone, resolved or not
type PublicGuard struct{}

func (PublicGuard) Check(SessionState) Verdict {
	return allow()
}

// AuthenticatedGuard allows any held session.
type AuthenticatedGuard struct {
	LoginPath string
}

func (g AuthenticatedGuard) Check(state SessionState) Verdict {
	if !state.Resolved {
		return pending()
	}
	if !state.Present() {
		return redirect(g.LoginPath, ReasonUnauthenticated)
	}
	return allow()
}

// RoleGuard allows admin sessions whose role is listed. Citizens carry no
// role and are always redirected.
type RoleGuard struct {
	Roles []Role
	// MinimumRole, when set, allows any role at or above it in the
	// officer < admin < superadmin order instead of checking Roles
	MinimumRole Role
	LoginPath   string
}

// NewRoleGuard returns a RoleGuard for roles
func NewRoleGuard(loginPath string, roles ...Role) RoleGuard {
	return RoleGuard{Roles: roles, LoginPath: loginPath}
}

// NewMinimumRoleGuard returns a RoleGuard allowing minRole and above
func NewMinimumRoleGuard(loginPath string, minRole Role) RoleGuard {
	return RoleGuard{MinimumRole: minRole, LoginPath: loginPath}
}

// AdminGuard gates the admin console
func AdminGuard(loginPath string) RoleGuard {
	return NewRoleGuard(loginPath, AdminRoles...)
}

func (g RoleGuard) Check(state SessionState) Verdict {
	if !state.Resolved {
		return pending()
	}
	if !state.Present() {
		return redirect(g.LoginPath, ReasonUnauthenticated)
	}

	admin, ok := state.Session.Admin()
	if !ok {
		return redirect(g.LoginPath, ReasonCitizenDenied)
	}
	if !g.permits(admin.UserRole) {
		return redirect(g.LoginPath, ReasonRoleDenied)
	}
	return allow()
}

func (g RoleGuard) permits(role Role) bool {
	if g.MinimumRole != "" {
		return role.IsAtLeast(g.MinimumRole)
	}
	return role.In(g.Roles...)
}
