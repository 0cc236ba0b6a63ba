package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	auth "github.com/gram-panchayat/go-portal-auth"
)

// RetryPolicy bounds the retry decorator
type RetryPolicy struct {
	// Attempts includes the first call. Values below 1 mean one attempt.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// PolicyFromConfig reads the retry settings from cfg
func PolicyFromConfig(cfg auth.Config) RetryPolicy {
	return RetryPolicy{
		Attempts:        cfg.GetRetryAttempts(),
		InitialInterval: cfg.GetRetryInitialInterval(),
		MaxInterval:     cfg.GetRetryMaxInterval(),
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Retrying decorates a CredentialClient with capped exponential backoff.
// Only network failures are retried; rejections are returned at once.
type Retrying struct {
	inner  auth.CredentialClient
	policy RetryPolicy
	logger auth.Logger
}

var _ auth.CredentialClient = (*Retrying)(nil)

// WithRetry wraps inner. A policy with one attempt returns inner unchanged.
func WithRetry(inner auth.CredentialClient, policy RetryPolicy, logger auth.Logger) auth.CredentialClient {
	if policy.Attempts <= 1 {
		return inner
	}
	if logger == nil {
		logger = auth.NopLogger()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

func (r *Retrying) RequestCode(ctx context.Context, mobile string) (auth.CodeDispatch, error) {
	var out auth.CodeDispatch
	err := r.do(ctx, "request_code", func() error {
		var err error
		out, err = r.inner.RequestCode(ctx, mobile)
		return err
	})
	return out, err
}

func (r *Retrying) VerifyCode(ctx context.Context, mobile, code, fullName string) (auth.Grant, error) {
	var out auth.Grant
	err := r.do(ctx, "verify_code", func() error {
		var err error
		out, err = r.inner.VerifyCode(ctx, mobile, code, fullName)
		return err
	})
	return out, err
}

func (r *Retrying) AdminLogin(ctx context.Context, username, password string) (auth.Grant, error) {
	var out auth.Grant
	err := r.do(ctx, "admin_login", func() error {
		var err error
		out, err = r.inner.AdminLogin(ctx, username, password)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, call func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		if !auth.IsNetworkError(err) {
			return backoff.Permanent(err)
		}
		r.logger.Debug("retrying after network failure", "op", op, "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(operation, r.policy.newBackOff(ctx))
	if err != nil && ctx.Err() != nil && !auth.IsNetworkError(err) {
		return auth.NewNetworkError(ctx.Err())
	}
	return err
}
