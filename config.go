package auth

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

const (
	defaultBaseURL              = "http://localhost:5000/api"
	defaultRequestTimeout       = 15 * time.Second
	defaultRetryAttempts        = 1
	defaultRetryInitialInterval = 300 * time.Millisecond
	defaultRetryMaxInterval     = 3 * time.Second
	defaultSessionBackend       = "file"
	defaultSessionPath          = ".portal/session.json"
	defaultSQLiteDSN            = "file:portal-session.db?cache=shared"
	defaultRedisKey             = "portal:session"

	envPrefix = "PORTAL_"
)

// Session persistence backends
const (
	SessionBackendFile   = "file"
	SessionBackendSQLite = "sqlite"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Options is the default Config implementation
type Options struct {
	BaseURL              string
	RequestTimeout       time.Duration
	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	LoginPath            string
	SessionBackend       string
	SessionPath          string
	SQLiteDSN            string
	RedisURL             string
	RedisKey             string
}

var _ Config = Options{}

// DefaultOptions targets the local development backend
func DefaultOptions() Options {
	return Options{
		BaseURL:              defaultBaseURL,
		RequestTimeout:       defaultRequestTimeout,
		RetryAttempts:        defaultRetryAttempts,
		RetryInitialInterval: defaultRetryInitialInterval,
		RetryMaxInterval:     defaultRetryMaxInterval,
		LoginPath:            DefaultLoginPath,
		SessionBackend:       defaultSessionBackend,
		SessionPath:          defaultSessionPath,
		SQLiteDSN:            defaultSQLiteDSN,
		RedisKey:             defaultRedisKey,
	}
}

// LoadOptions reads PORTAL_* variables on top of DefaultOptions. A .env file
// in the working directory is loaded first when present.
func LoadOptions() (Options, error) {
	_ = godotenv.Load()
	return OptionsFromEnv(os.LookupEnv)
}

// OptionsFromEnv builds Options from a lookup function
func OptionsFromEnv(lookup func(string) (string, bool)) (Options, error) {
	opts := DefaultOptions()
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("BASE_URL"); ok {
		opts.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := get("LOGIN_PATH"); ok {
		opts.LoginPath = v
	}
	if v, ok := get("SESSION_BACKEND"); ok {
		opts.SessionBackend = strings.ToLower(v)
	}
	if v, ok := get("SESSION_PATH"); ok {
		opts.SessionPath = v
	}
	if v, ok := get("SQLITE_DSN"); ok {
		opts.SQLiteDSN = v
	}
	if v, ok := get("REDIS_URL"); ok {
		opts.RedisURL = v
	}
	if v, ok := get("REDIS_KEY"); ok {
		opts.RedisKey = v
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"REQUEST_TIMEOUT", &opts.RequestTimeout},
		{"RETRY_INITIAL_INTERVAL", &opts.RetryInitialInterval},
		{"RETRY_MAX_INTERVAL", &opts.RetryMaxInterval},
	}
	for _, d := range durations {
		v, ok := get(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Options{}, invalidOption(d.key, v, err)
		}
		*d.target = parsed
	}

	if v, ok := get("RETRY_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Options{}, invalidOption("RETRY_ATTEMPTS", v, err)
		}
		opts.RetryAttempts = n
	}

	switch opts.SessionBackend {
	case SessionBackendFile, SessionBackendSQLite, SessionBackendRedis, SessionBackendMemory:
	default:
		return Options{}, invalidOption("SESSION_BACKEND", opts.SessionBackend, nil)
	}

	if opts.SessionBackend == SessionBackendRedis && opts.RedisURL == "" {
		return Options{}, goerrors.New(envPrefix+"REDIS_URL must be set for the redis session backend", goerrors.CategoryValidation).
			WithTextCode("CONFIG_INVALID")
	}

	return opts, nil
}

func invalidOption(key, value string, cause error) error {
	msg := "invalid " + envPrefix + key + ": " + value
	if cause != nil {
		return goerrors.Wrap(cause, goerrors.CategoryValidation, msg).WithTextCode("CONFIG_INVALID")
	}
	return goerrors.New(msg, goerrors.CategoryValidation).WithTextCode("CONFIG_INVALID")
}

func (o Options) GetBaseURL() string                     { return o.BaseURL }
func (o Options) GetRequestTimeout() time.Duration       { return o.RequestTimeout }
func (o Options) GetRetryAttempts() int                  { return o.RetryAttempts }
func (o Options) GetRetryInitialInterval() time.Duration { return o.RetryInitialInterval }
func (o Options) GetRetryMaxInterval() time.Duration     { return o.RetryMaxInterval }
func (o Options) GetLoginPath() string                   { return o.LoginPath }
func (o Options) GetSessionBackend() string              { return o.SessionBackend }
func (o Options) GetSessionPath() string                 { return o.SessionPath }
func (o Options) GetSQLiteDSN() string                   { return o.SQLiteDSN }
func (o Options) GetRedisURL() string                    { return o.RedisURL }
func (o Options) GetRedisKey() string                    { return o.RedisKey }
