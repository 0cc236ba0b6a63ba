package auth

import (
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is the numbering plan citizen mobiles belong to
const DefaultRegion = "IN"

// IdentityKind tags the Identity variant held by a Session
type IdentityKind string

const (
	// IdentityCitizen is a citizen authenticated by mobile OTP
	IdentityCitizen IdentityKind = "citizen"
	// IdentityAdmin is a staff account authenticated by username and password
	IdentityAdmin IdentityKind = "admin"
)

// Identity is the authenticated principal
type Identity interface {
	Kind() IdentityKind
	ID() string
	DisplayName() string
	// Role is empty for citizens
	Role() Role
}

// CitizenIdentity is a citizen account keyed by mobile number.
type CitizenIdentity struct {
	AccountID string `json:"id"`
	Mobile    string `json:"mobile"`
	FullName  string `json:"full_name"`
}

var _ Identity = CitizenIdentity{}

func (c CitizenIdentity) Kind() IdentityKind  { return IdentityCitizen }
func (c CitizenIdentity) ID() string          { return c.AccountID }
func (c CitizenIdentity) DisplayName() string { return c.FullName }
func (c CitizenIdentity) Role() Role          { return "" }

// E164 returns the mobile in E.164 form, or the raw value if it does not parse
func (c CitizenIdentity) E164() string {
	return FormatMobile(c.Mobile, phonenumbers.E164)
}

// DisplayMobile returns the mobile in international format, e.g. +91 98765 43210
func (c CitizenIdentity) DisplayMobile() string {
	return FormatMobile(c.Mobile, phonenumbers.INTERNATIONAL)
}

// AdminIdentity is a portal staff account.
type AdminIdentity struct {
	AccountID  string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	UserRole   Role   `json:"role"`
}

var _ Identity = AdminIdentity{}

func (a AdminIdentity) Kind() IdentityKind { return IdentityAdmin }
func (a AdminIdentity) ID() string         { return a.AccountID }
func (a AdminIdentity) Role() Role         { return a.UserRole }

func (a AdminIdentity) DisplayName() string {
	if a.FullName != "" {
		return a.FullName
	}
	return a.Username
}

// Session pairs an identity with the bearer token issued for it.
type Session struct {
	Token    string
	Identity Identity
}

// IsZero reports whether the session is empty
func (s Session) IsZero() bool {
	return s.Token == "" && s.Identity == nil
}

// Citizen returns the citizen identity if the session holds one
func (s Session) Citizen() (CitizenIdentity, bool) {
	c, ok := s.Identity.(CitizenIdentity)
	return c, ok
}

// Admin returns the admin identity if the session holds one
func (s Session) Admin() (AdminIdentity, bool) {
	a, ok := s.Identity.(AdminIdentity)
	return a, ok
}

// Claims decodes the token payload without verifying it.
func (s Session) Claims() (TokenClaims, error) {
	return InspectToken(s.Token)
}

// CodeDispatch is the backend answer to a code request
type CodeDispatch struct {
	Accepted bool
	// DevCode is only sent by non production backends. It is advisory.
	DevCode string
}

// Grant is the result of a successful verification or admin login
type Grant struct {
	Identity Identity
	Token    string
}

// SessionSnapshot is the persisted form of a Session
type SessionSnapshot struct {
	Kind       IdentityKind `json:"kind"`
	Token      string       `json:"token"`
	AccountID  string       `json:"account_id"`
	Mobile     string       `json:"mobile,omitempty"`
	FullName   string       `json:"full_name,omitempty"`
	Username   string       `json:"username,omitempty"`
	Email      string       `json:"email,omitempty"`
	Department string       `json:"department,omitempty"`
	Role       Role         `json:"role,omitempty"`
	StoredAt   time.Time    `json:"stored_at"`
}

// SnapshotFromSession flattens a session for persistence
func SnapshotFromSession(s Session, now time.Time) SessionSnapshot {
	snap := SessionSnapshot{
		Token:    s.Token,
		StoredAt: now.UTC(),
	}

	switch id := s.Identity.(type) {
	case CitizenIdentity:
		snap.Kind = IdentityCitizen
		snap.AccountID = id.AccountID
		snap.Mobile = id.Mobile
		snap.FullName = id.FullName
	case AdminIdentity:
		snap.Kind = IdentityAdmin
		snap.AccountID = id.AccountID
		snap.Username = id.Username
		snap.FullName = id.FullName
		snap.Email = id.Email
		snap.Department = id.Department
		snap.Role = id.UserRole
	}

	return snap
}

// Session rebuilds the tagged identity. Snapshots missing the token or
// carrying an unknown kind are rejected so a half written record never
// becomes a live session.
func (s SessionSnapshot) Session() (Session, error) {
	if strings.TrimSpace(s.Token) == "" {
		return Session{}, annotate(ErrCorruptSnapshot, map[string]any{
			"reason": "token is empty",
		})
	}

	switch s.Kind {
	case IdentityCitizen:
		return Session{
			Token: s.Token,
			Identity: CitizenIdentity{
				AccountID: s.AccountID,
				Mobile:    s.Mobile,
				FullName:  s.FullName,
			},
		}, nil
	case IdentityAdmin:
		return Session{
			Token: s.Token,
			Identity: AdminIdentity{
				AccountID:  s.AccountID,
				Username:   s.Username,
				FullName:   s.FullName,
				Email:      s.Email,
				Department: s.Department,
				UserRole:   s.Role,
			},
		}, nil
	default:
		return Session{}, annotate(ErrCorruptSnapshot, map[string]any{
			"reason": "unknown identity kind",
			"kind":   s.Kind,
		})
	}
}

// FormatMobile formats a mobile number of the default region. Values that do
// not parse are returned unchanged.
func FormatMobile(mobile string, format phonenumbers.PhoneNumberFormat) string {
	num, err := phonenumbers.Parse(mobile, DefaultRegion)
	if err != nil {
		return mobile
	}
	return phonenumbers.Format(num, format)
}

// MaskMobile hides the middle digits of a mobile for logs
func MaskMobile(mobile string) string {
	if len(mobile) < 4 {
		return strings.Repeat("*", len(mobile))
	}
	return mobile[:2] + strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-2:]
}
