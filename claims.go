package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeTokenMalformed = "TOKEN_MALFORMED"

// ErrTokenMalformed is returned when a bearer token cannot be decoded.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed)

// TokenClaims is the decoded payload of a portal access token. Tokens are
// opaque to the portal client: the claims are informational and are never
// used to authorize anything locally.
type TokenClaims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token expiry is before now. Tokens without an
// expiry never report expired.
func (c TokenClaims) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// IsAdmin reports whether the role claim names a staff role
func (c TokenClaims) IsAdmin() bool {
	_, ok := ParseRole(c.Role)
	return ok
}

// InspectToken decodes the token without checking its signature. The
// signing key lives on the backend only. Numeric subjects, as minted from
// integer account IDs, are read as their decimal string.
func InspectToken(token string) (TokenClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return TokenClaims{}, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, malformed(err)
	}

	out := TokenClaims{
		Subject: claimString(claims["sub"]),
		Role:    claimString(claims["role"]),
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil {
		return TokenClaims{}, malformed(err)
	}
	if issuedAt != nil {
		out.IssuedAt = issuedAt.Time
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil {
		return TokenClaims{}, malformed(err)
	}
	if expiresAt != nil {
		out.ExpiresAt = expiresAt.Time
	}
	return out, nil
}

func claimString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return ""
	}
}

func malformed(err error) error {
	return goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
		WithTextCode(ErrTokenMalformed.TextCode)
}
