package auth_test

import (
	"context"
	"testing"

	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFromContext(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.SessionFromContext(ctx)
	assert.False(t, ok)

	session := auth.Session{Token: testToken, Identity: auth.CitizenIdentity{AccountID: "42"}}
	got, ok := auth.SessionFromContext(auth.WithSession(ctx, session))
	require.True(t, ok)
	assert.Equal(t, session, got)

	identity, ok := auth.IdentityFromContext(auth.WithSession(ctx, session))
	require.True(t, ok)
	assert.Equal(t, "42", identity.ID())
}

func TestSessionFromContextFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := quietStore(nil)
	ctx = auth.WithSessionStore(ctx, store)

	found, ok := auth.SessionStoreFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, store, found)

	_, ok = auth.SessionFromContext(ctx)
	assert.False(t, ok)

	require.NoError(t, store.Establish(ctx, auth.AdminIdentity{AccountID: "1", UserRole: auth.RoleAdmin}, adminToken))
	session, ok := auth.SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, adminToken, session.Token)
}
