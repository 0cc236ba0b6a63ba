package auth

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidMobile       = "INVALID_MOBILE"
	TextCodeInvalidCode         = "INVALID_OTP"
	TextCodeNameRequired        = "NAME_REQUIRED"
	TextCodeCredentialsRequired = "CREDENTIALS_REQUIRED"
	TextCodeNetwork             = "NETWORK_ERROR"
	TextCodeSessionInvalid      = "SESSION_INVALID"
	TextCodeSessionRequired     = "SESSION_REQUIRED"
	TextCodeCorruptSnapshot     = "CORRUPT_SESSION_SNAPSHOT"
	TextCodeFlowBusy            = "FLOW_BUSY"
	TextCodeFlowClosed          = "FLOW_CLOSED"
	TextCodeFlowReset           = "FLOW_RESET"
	TextCodeInvalidStep         = "INVALID_LOGIN_STEP"
	TextCodeInvalidTransition   = "INVALID_LOGIN_TRANSITION"
	TextCodeUnexpectedIdentity  = "UNEXPECTED_IDENTITY"
)

// NetworkMessage is shown for transport failures
const NetworkMessage = "Unable to reach the portal. Please check your connection and try again."

// ErrSessionInvalid is returned when the backend no longer accepts the bearer token.
var ErrSessionInvalid = goerrors.New("your session has expired, please log in again", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(http.StatusUnauthorized)

// ErrSessionRequired is returned when a protected call is made without a session.
var ErrSessionRequired = goerrors.New("login required", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRequired).
	WithCode(http.StatusUnauthorized)

// ErrCorruptSnapshot is returned when a persisted session cannot be rebuilt.
var ErrCorruptSnapshot = goerrors.New("persisted session is corrupt", goerrors.CategoryBadInput).
	WithTextCode(TextCodeCorruptSnapshot)

// ErrFlowBusy is returned when a submission arrives while a request is in flight.
var ErrFlowBusy = goerrors.New("a request is already in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeFlowBusy).
	WithCode(http.StatusConflict)

// ErrFlowClosed is returned once a flow has been disposed or has completed.
var ErrFlowClosed = goerrors.New("login flow is closed", goerrors.CategoryConflict).
	WithTextCode(TextCodeFlowClosed).
	WithCode(http.StatusConflict)

// ErrFlowReset is returned to the caller whose response arrived after the
// flow was restarted. The response is discarded.
var ErrFlowReset = goerrors.New("login flow was restarted, response discarded", goerrors.CategoryConflict).
	WithTextCode(TextCodeFlowReset).
	WithCode(http.StatusConflict)

// ErrInvalidStep is returned when an action does not belong to the current step.
var ErrInvalidStep = goerrors.New("action not available in the current login step", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidStep).
	WithCode(http.StatusBadRequest)

// ErrInvalidTransition is returned when a step change is not in the transition table.
var ErrInvalidTransition = goerrors.New("invalid login step transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(http.StatusBadRequest)

// ErrUnexpectedIdentity is returned when the backend grants the wrong identity kind.
var ErrUnexpectedIdentity = goerrors.New("backend returned an unexpected identity", goerrors.CategoryInternal).
	WithTextCode(TextCodeUnexpectedIdentity).
	WithCode(http.StatusBadGateway)

// NewValidationError builds a local validation failure. These never reach the backend.
func NewValidationError(textCode, message string) error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(textCode).
		WithCode(http.StatusBadRequest)
}

// NewNetworkError wraps a transport failure or timeout.
func NewNetworkError(err error) error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, NetworkMessage).
		WithTextCode(TextCodeNetwork).
		WithCode(http.StatusServiceUnavailable)
}

// NewRejectedError builds a backend refusal. The message is kept verbatim.
func NewRejectedError(reason RejectionReason, message string, status int) error {
	if status == 0 {
		status = http.StatusBadRequest
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(reason.TextCode()).
		WithCode(status).
		WithMetadata(map[string]any{
			"reason": string(reason),
			"status": status,
		})
}

// Rejection is the decoded view of a RejectedError
type Rejection struct {
	Reason  RejectionReason
	Message string
	Status  int
}

// AsRejected extracts the rejection carried by err, if any.
func AsRejected(err error) (Rejection, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return Rejection{}, false
	}

	reason, ok := reasonFromTextCode(richErr.TextCode)
	if !ok {
		return Rejection{}, false
	}

	return Rejection{
		Reason:  reason,
		Message: richErr.Message,
		Status:  richErr.Code,
	}, true
}

// IsValidationError reports local validation failures
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr != nil &&
		richErr.Category == goerrors.CategoryValidation &&
		richErr.TextCode != TextCodeInvalidStep &&
		richErr.TextCode != TextCodeInvalidTransition
}

// IsNetworkError reports transport failures
func IsNetworkError(err error) bool {
	return HasTextCode(err, TextCodeNetwork)
}

// IsSessionInvalid reports a rejected bearer credential
func IsSessionInvalid(err error) bool {
	return HasTextCode(err, TextCodeSessionInvalid)
}

// HasTextCode checks the text code of the first rich error in the chain.
func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return richErr.TextCode == textCode
}

// Notice returns the message a UI should show for err.
func Notice(err error) string {
	if err == nil {
		return ""
	}

	if IsNetworkError(err) {
		return NetworkMessage
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}

	return err.Error()
}

// annotate clones a sentinel before attaching metadata so the shared value
// is never mutated.
func annotate(sentinel *goerrors.Error, metadata map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(metadata)
}
