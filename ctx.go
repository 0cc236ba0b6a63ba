package auth

import "context"

var storeCtxKey = &contextKey{"session_store"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSessionStore sets the SessionStore in the given context
func WithSessionStore(ctx context.Context, store *SessionStore) context.Context {
	return context.WithValue(ctx, storeCtxKey, store)
}

// SessionStoreFromContext finds the SessionStore in the context.
func SessionStoreFromContext(ctx context.Context) (*SessionStore, bool) {
	store, ok := ctx.Value(storeCtxKey).(*SessionStore)
	return store, ok && store != nil
}

// WithSession sets the Session in the given context
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext returns the session carried by ctx. When only a store
// is present its current session is used.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if session, ok := ctx.Value(sessionCtxKey).(Session); ok && !session.IsZero() {
		return session, true
	}
	if store, ok := SessionStoreFromContext(ctx); ok {
		return store.Current()
	}
	return Session{}, false
}

// IdentityFromContext returns the identity of the session carried by ctx
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Identity == nil {
		return nil, false
	}
	return session.Identity, true
}
