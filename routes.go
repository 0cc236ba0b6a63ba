package auth

import (
	"net/url"
	"strings"
	"sync"
)

// Route binds a path pattern to the guard that protects it. Segments
// starting with ':' match any single segment.
type Route struct {
	Pattern string
	Guard   Guard

	segments []string
}

// RouteMatch is the route selected for a path
type RouteMatch struct {
	Route  Route
	Params map[string]string
}

// RouteTable resolves paths to guards. Paths that match no route use the
// fallback guard.
type RouteTable struct {
	mu       sync.RWMutex
	routes   []Route
	fallback Guard
}

// NewRouteTable returns an empty table. A nil fallback denies anonymous
// access to unknown paths.
func NewRouteTable(fallback Guard) *RouteTable {
	if fallback == nil {
		fallback = AuthenticatedGuard{LoginPath: DefaultLoginPath}
	}
	return &RouteTable{fallback: fallback}
}

// Handle registers pattern. Earlier registrations win on overlap.
func (t *RouteTable) Handle(pattern string, guard Guard) *RouteTable {
	if guard == nil {
		guard = t.fallback
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, Route{
		Pattern:  pattern,
		Guard:    guard,
		segments: splitPath(pattern),
	})
	return t
}

// Routes returns the registered routes in order
func (t *RouteTable) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match finds the route for path
func (t *RouteTable) Match(path string) (RouteMatch, bool) {
	segments := splitPath(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, route := range t.routes {
		if params, ok := matchSegments(route.segments, segments); ok {
			return RouteMatch{Route: route, Params: params}, true
		}
	}
	return RouteMatch{}, false
}

// GuardFor returns the guard for path, or the fallback
func (t *RouteTable) GuardFor(path string) Guard {
	if match, ok := t.Match(path); ok {
		return match.Route.Guard
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fallback
}

// Check evaluates the guard for path against state
func (t *RouteTable) Check(path string, state SessionState) Verdict {
	return t.GuardFor(path).Check(state)
}

// PortalRoutes returns the portal's navigation table
func PortalRoutes(loginPath string) *RouteTable {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	authenticated := AuthenticatedGuard{LoginPath: loginPath}

	return NewRouteTable(authenticated).
		Handle(loginPath, PublicGuard{}).
		Handle("/track", PublicGuard{}).
		Handle("/", authenticated).
		Handle("/services", authenticated).
		Handle("/services/apply/:categoryId", authenticated).
		Handle("/grievances", authenticated).
		Handle("/payments", authenticated).
		Handle("/admin", AdminGuard(loginPath))
}

// Navigator checks navigation requests against the live store.
type Navigator struct {
	store  *SessionStore
	routes *RouteTable
}

// NewNavigator returns a Navigator. A nil table uses PortalRoutes.
func NewNavigator(store *SessionStore, routes *RouteTable) *Navigator {
	if routes == nil {
		routes = PortalRoutes(DefaultLoginPath)
	}
	return &Navigator{store: store, routes: routes}
}

// Navigate evaluates path. It holds no state of its own.
func (n *Navigator) Navigate(path string) Verdict {
	state := SessionState{}
	if n.store != nil {
		state = n.store.State()
	}
	return n.routes.Check(path, state)
}

// Routes returns the table used by the navigator
func (n *Navigator) Routes() *RouteTable {
	return n.routes
}

func splitPath(path string) []string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[seg[1:]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, false
		}
	}
	return params, true
}
