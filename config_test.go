package auth_test

import (
	"testing"
	"time"

	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestOptionsFromEnvDefaults(t *testing.T) {
	opts, err := auth.OptionsFromEnv(envLookup(nil))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultOptions(), opts)
	assert.Equal(t, "http://localhost:5000/api", opts.GetBaseURL())
	assert.Equal(t, 15*time.Second, opts.GetRequestTimeout())
	assert.Equal(t, 1, opts.GetRetryAttempts())
	assert.Equal(t, auth.SessionBackendFile, opts.GetSessionBackend())
	assert.Equal(t, auth.DefaultLoginPath, opts.GetLoginPath())
}

func TestOptionsFromEnvOverrides(t *testing.T) {
	opts, err := auth.OptionsFromEnv(envLookup(map[string]string{
		"PORTAL_BASE_URL":               "https://gp.example.in/api/",
		"PORTAL_SESSION_BACKEND":        "Redis",
		"PORTAL_REDIS_URL":              "redis://localhost:6379/0",
		"PORTAL_REQUEST_TIMEOUT":        "5s",
		"PORTAL_RETRY_ATTEMPTS":         "3",
		"PORTAL_RETRY_INITIAL_INTERVAL": "100ms",
		"PORTAL_LOGIN_PATH":             " /signin ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://gp.example.in/api", opts.BaseURL)
	assert.Equal(t, auth.SessionBackendRedis, opts.SessionBackend)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)
	assert.Equal(t, 3, opts.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.RetryInitialInterval)
	assert.Equal(t, "/signin", opts.LoginPath)
}

func TestOptionsFromEnvRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":       {"PORTAL_REQUEST_TIMEOUT": "soon"},
		"zero attempts":      {"PORTAL_RETRY_ATTEMPTS": "0"},
		"unknown backend":    {"PORTAL_SESSION_BACKEND": "etcd"},
		"redis without url":  {"PORTAL_SESSION_BACKEND": "redis"},
		"attempts not a num": {"PORTAL_RETRY_ATTEMPTS": "many"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.OptionsFromEnv(envLookup(env))
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, "CONFIG_INVALID"))
		})
	}
}

func TestOptionsFromEnvIgnoresBlankValues(t *testing.T) {
	opts, err := auth.OptionsFromEnv(envLookup(map[string]string{
		"PORTAL_BASE_URL": "   ",
	}))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultOptions().BaseURL, opts.BaseURL)
}
