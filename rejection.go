package auth

import "strings"

// RejectionReason classifies a backend refusal of a verification or login.
// LoginFlow branches on the reason only, never on message text.
type RejectionReason string

const (
	// ReasonNewUser means the mobile has no account and a full name is needed
	ReasonNewUser RejectionReason = "new_user"
	// ReasonCodeInvalid means the code did not match
	ReasonCodeInvalid RejectionReason = "code_invalid"
	// ReasonCodeExpired means the code is past its lifetime
	ReasonCodeExpired RejectionReason = "code_expired"
	// ReasonOther covers every other refusal
	ReasonOther RejectionReason = "other"
)

const (
	TextCodeNewUser     = "NEW_USER"
	TextCodeCodeInvalid = "CODE_INVALID"
	TextCodeCodeExpired = "CODE_EXPIRED"
	TextCodeRejected    = "REJECTED"
)

// TextCode maps the reason to the error text code carried by RejectedError
func (r RejectionReason) TextCode() string {
	switch r {
	case ReasonNewUser:
		return TextCodeNewUser
	case ReasonCodeInvalid:
		return TextCodeCodeInvalid
	case ReasonCodeExpired:
		return TextCodeCodeExpired
	default:
		return TextCodeRejected
	}
}

func reasonFromTextCode(textCode string) (RejectionReason, bool) {
	switch textCode {
	case TextCodeNewUser:
		return ReasonNewUser, true
	case TextCodeCodeInvalid:
		return ReasonCodeInvalid, true
	case TextCodeCodeExpired:
		return ReasonCodeExpired, true
	case TextCodeRejected:
		return ReasonOther, true
	default:
		return "", false
	}
}

// legacy backends only send a human message
var legacyMarkers = []struct {
	marker string
	reason RejectionReason
}{
	{marker: "full name required", reason: ReasonNewUser},
	{marker: "invalid otp", reason: ReasonCodeInvalid},
	{marker: "expired", reason: ReasonCodeExpired},
}

// ReasonFromWire classifies a refusal. A structured code wins; otherwise the
// message is matched case-insensitively against the legacy phrases.
func ReasonFromWire(code, message string) RejectionReason {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "":
	case "new_user", "name_required", "registration_required":
		return ReasonNewUser
	case "code_invalid", "invalid_otp", "invalid_code":
		return ReasonCodeInvalid
	case "code_expired", "otp_expired", "expired":
		return ReasonCodeExpired
	default:
		return ReasonOther
	}

	lower := strings.ToLower(message)
	for _, m := range legacyMarkers {
		if strings.Contains(lower, m.marker) {
			return m.reason
		}
	}
	return ReasonOther
}
