package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-logger/glog"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers like the development backend
type scriptedClient struct {
	known map[string]string
}

func (s scriptedClient) RequestCode(_ context.Context, mobile string) (auth.CodeDispatch, error) {
	return auth.CodeDispatch{Accepted: true, DevCode: "123456"}, nil
}

func (s scriptedClient) VerifyCode(_ context.Context, mobile, code, fullName string) (auth.Grant, error) {
	if code != "123456" {
		return auth.Grant{}, auth.NewRejectedError(auth.ReasonCodeInvalid, "Invalid OTP", 401)
	}
	name, ok := s.known[mobile]
	if !ok && fullName == "" {
		return auth.Grant{}, auth.NewRejectedError(auth.ReasonNewUser, "Full name required for registration", 400)
	}
	if fullName != "" {
		name = fullName
	}
	return auth.Grant{
		Identity: auth.CitizenIdentity{AccountID: "42", Mobile: mobile, FullName: name},
		Token:    "citizen-token",
	}, nil
}

func (s scriptedClient) AdminLogin(_ context.Context, username, password string) (auth.Grant, error) {
	if username != "admin" || password != "admin123" {
		return auth.Grant{}, auth.NewRejectedError(auth.ReasonOther, "Invalid credentials", 401)
	}
	return auth.Grant{
		Identity: auth.AdminIdentity{AccountID: "1", Username: "admin", UserRole: auth.RoleAdmin},
		Token:    "admin-token",
	}, nil
}

func newTestApp(t *testing.T, input string) (*App, *bytes.Buffer) {
	t.Helper()

	cfg := auth.DefaultOptions()
	cfg.SessionBackend = auth.SessionBackendMemory

	out := &bytes.Buffer{}
	lgr := glog.NewLogger(glog.WithName("portalctl-test"))

	app, err := NewApp(context.Background(), cfg, lgr, strings.NewReader(input), out)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	app.creds = scriptedClient{known: map[string]string{"9876543210": "Asha Devi"}}
	return app, out
}

func TestLoginExistingCitizen(t *testing.T) {
	app, out := newTestApp(t, "9876543210\n000000\n123456\n")

	require.NoError(t, app.Run(context.Background(), "login", nil))

	output := out.String()
	assert.Contains(t, output, "(dev OTP: 123456)")
	assert.Contains(t, output, "Invalid OTP")
	assert.Contains(t, output, "citizen Asha Devi (+91 98765 43210)")

	session, ok := app.store.Current()
	require.True(t, ok)
	assert.Equal(t, "citizen-token", session.Token)
}

func TestLoginRegistersNewCitizen(t *testing.T) {
	app, out := newTestApp(t, "9123456780\n123456\nRavi Kumar\n")

	require.NoError(t, app.Run(context.Background(), "login", nil))
	assert.Contains(t, out.String(), "Full name required for registration")
	assert.Contains(t, out.String(), "citizen Ravi Kumar")
}

func TestLoginSwitchesToAdmin(t *testing.T) {
	app, out := newTestApp(t, ":admin\nadmin\nadmin123\n")

	require.NoError(t, app.Run(context.Background(), "login", nil))
	assert.Contains(t, out.String(), "admin admin (admin)")
}

func TestLoginStopsAtEndOfInput(t *testing.T) {
	app, _ := newTestApp(t, "123\n")

	err := app.Run(context.Background(), "login", nil)
	require.Error(t, err)

	_, ok := app.store.Current()
	assert.False(t, ok)
}

func TestAdminCommand(t *testing.T) {
	app, _ := newTestApp(t, "wrong\n")

	err := app.Run(context.Background(), "admin", []string{"-u", "admin"})
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", auth.Notice(err))

	app, out := newTestApp(t, "admin123\n")
	require.NoError(t, app.Run(context.Background(), "admin", []string{"-u", "admin"}))
	assert.Contains(t, out.String(), "admin admin (admin)")
}

func TestRoutesAndLogout(t *testing.T) {
	ctx := context.Background()
	app, out := newTestApp(t, "")

	require.NoError(t, app.Run(ctx, "routes", []string{"/admin"}))
	assert.Contains(t, out.String(), "/admin: redirect to /login (unauthenticated)")

	require.NoError(t, app.store.Establish(ctx, auth.CitizenIdentity{AccountID: "42"}, "citizen-token"))
	out.Reset()
	require.NoError(t, app.Run(ctx, "routes", []string{"/services"}))
	assert.Equal(t, "/services: allow\n", out.String())

	out.Reset()
	require.NoError(t, app.Run(ctx, "logout", nil))
	assert.Equal(t, "logged out\n", out.String())

	out.Reset()
	require.NoError(t, app.Run(ctx, "whoami", nil))
	assert.Equal(t, "not logged in\n", out.String())

	assert.Error(t, app.Run(ctx, "routes", nil))
	assert.Error(t, app.Run(ctx, "frobnicate", nil))
}

func TestOpenPersisterRejectsUnknownBackend(t *testing.T) {
	cfg := auth.DefaultOptions()
	cfg.SessionBackend = "etcd"

	_, _, err := OpenPersister(context.Background(), cfg)
	assert.Error(t, err)
}
