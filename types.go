package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialClient is the request/response contract with the identity
// backend. Implementations are single shot: they never retry and report
// transport failures as NetworkError and refusals as RejectedError.
type CredentialClient interface {
	RequestCode(ctx context.Context, mobile string) (CodeDispatch, error)
	VerifyCode(ctx context.Context, mobile, code, fullName string) (Grant, error)
	AdminLogin(ctx context.Context, username, password string) (Grant, error)
}

// SessionPersister stores the session snapshot between process runs.
// LoadSession returns nil, nil when nothing has been stored.
type SessionPersister interface {
	LoadSession(ctx context.Context) (*SessionSnapshot, error)
	SaveSession(ctx context.Context, snapshot SessionSnapshot) error
	ClearSession(ctx context.Context) error
}

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRetryAttempts() int
	GetRetryInitialInterval() time.Duration
	GetRetryMaxInterval() time.Duration
	GetLoginPath() string
	GetSessionBackend() string
	GetSessionPath() string
	GetSQLiteDSN() string
	GetRedisURL() string
	GetRedisKey() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Print("[ERR] AUTH " + render(format, args...))
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Print("[WRN] AUTH " + render(format, args...))
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Print("[INF] AUTH " + render(format, args...))
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Print("[DBG] AUTH " + render(format, args...))
}

// render accepts both printf style calls and slog style key/value pairs.
func render(format string, args ...any) string {
	if len(args) == 0 {
		return newline(format)
	}
	if strings.Contains(format, "%") {
		return newline(fmt.Sprintf(format, args...))
	}
	var b strings.Builder
	b.WriteString(format)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that drops everything. Useful for tests.
func NopLogger() Logger {
	return nopLogger{}
}
