package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/gram-panchayat/go-portal-auth/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClient fails with the queued errors before answering
type flakyClient struct {
	errs  []error
	calls int
}

func (f *flakyClient) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakyClient) RequestCode(context.Context, string) (auth.CodeDispatch, error) {
	if err := f.next(); err != nil {
		return auth.CodeDispatch{}, err
	}
	return auth.CodeDispatch{Accepted: true}, nil
}

func (f *flakyClient) VerifyCode(context.Context, string, string, string) (auth.Grant, error) {
	if err := f.next(); err != nil {
		return auth.Grant{}, err
	}
	return auth.Grant{Identity: auth.CitizenIdentity{AccountID: "42"}, Token: "t"}, nil
}

func (f *flakyClient) AdminLogin(context.Context, string, string) (auth.Grant, error) {
	if err := f.next(); err != nil {
		return auth.Grant{}, err
	}
	return auth.Grant{Identity: auth.AdminIdentity{AccountID: "1"}, Token: "t"}, nil
}

func fastPolicy(attempts int) client.RetryPolicy {
	return client.RetryPolicy{
		Attempts:        attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryRecoversFromNetworkErrors(t *testing.T) {
	inner := &flakyClient{errs: []error{
		auth.NewNetworkError(errors.New("reset by peer")),
		auth.NewNetworkError(errors.New("timeout")),
	}}
	retrying := client.WithRetry(inner, fastPolicy(3), nil)

	dispatch, err := retrying.RequestCode(context.Background(), knownMobile)
	require.NoError(t, err)
	assert.True(t, dispatch.Accepted)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	netErr := auth.NewNetworkError(errors.New("refused"))
	inner := &flakyClient{errs: []error{netErr, netErr, netErr, netErr}}
	retrying := client.WithRetry(inner, fastPolicy(2), nil)

	_, err := retrying.VerifyCode(context.Background(), knownMobile, validCode, "")
	require.Error(t, err)
	assert.True(t, auth.IsNetworkError(err))
	assert.Equal(t, 2, inner.calls)
}

func TestRetryNeverRepeatsRejections(t *testing.T) {
	inner := &flakyClient{errs: []error{
		auth.NewRejectedError(auth.ReasonCodeInvalid, "Invalid OTP", 401),
	}}
	retrying := client.WithRetry(inner, fastPolicy(5), nil)

	_, err := retrying.VerifyCode(context.Background(), knownMobile, "000000", "")
	rejection, ok := auth.AsRejected(err)
	require.True(t, ok)
	assert.Equal(t, auth.ReasonCodeInvalid, rejection.Reason)
	assert.Equal(t, 1, inner.calls)
}

func TestRetrySingleAttemptReturnsInner(t *testing.T) {
	inner := &flakyClient{}
	assert.Same(t, inner, client.WithRetry(inner, fastPolicy(1), nil))
	assert.Same(t, inner, client.WithRetry(inner, client.PolicyFromConfig(auth.DefaultOptions()), nil))
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	netErr := auth.NewNetworkError(errors.New("refused"))
	inner := &flakyClient{errs: []error{netErr, netErr, netErr}}
	retrying := client.WithRetry(inner, client.RetryPolicy{Attempts: 3, InitialInterval: time.Hour, MaxInterval: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := retrying.AdminLogin(ctx, "admin", "admin123")
	require.Error(t, err)
	assert.True(t, auth.IsNetworkError(err))
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 1, inner.calls)
}
