package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Step is the current screen of a LoginFlow
type Step string

const (
	StepMobileEntry  Step = "mobile_entry"
	StepOtpEntry     Step = "otp_entry"
	StepRegistration Step = "registration"
	StepAdminEntry   Step = "admin_entry"
	// StepAuthenticated is terminal. The flow is closed once it gets here.
	StepAuthenticated Step = "authenticated"
)

// Fallback notices when the backend refuses without a message.
const (
	noticeSendFailed   = "Failed to send OTP"
	noticeVerifyFailed = "OTP verification failed"
	noticeRegFailed    = "Registration failed"
	noticeLoginFailed  = "Login failed"
)

// LoginAttempt is a copy of the flow's working state.
type LoginAttempt struct {
	FlowID   string
	Step     Step
	Mobile   string
	Code     string
	FullName string
	// DevCode is advisory. It is displayed, never submitted on its own.
	DevCode string
	Busy    bool
	Notice  string
}

// StepChange describes a step transition
type StepChange struct {
	FlowID  string
	From    Step
	To      Step
	Reason  string
	Attempt LoginAttempt
}

// StepObserver is called after every step change, outside the flow lock.
type StepObserver func(ctx context.Context, change StepChange)

// FlowOption customizes LoginFlow and AdminFlow construction.
type FlowOption func(*flowOptions)

type flowOptions struct {
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
	observers    []StepObserver
	idGenerator  func() string
}

// WithFlowLogger overrides the logger
func WithFlowLogger(logger Logger) FlowOption {
	return func(o *flowOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFlowActivitySink sets the ActivitySink used to publish login events.
func WithFlowActivitySink(sink ActivitySink) FlowOption {
	return func(o *flowOptions) {
		o.activitySink = normalizeActivitySink(sink)
	}
}

// WithFlowClock injects a custom clock (useful for tests).
func WithFlowClock(clock func() time.Time) FlowOption {
	return func(o *flowOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithStepObserver adds an observer for step changes.
func WithStepObserver(observer StepObserver) FlowOption {
	return func(o *flowOptions) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithFlowIDGenerator overrides the flow ID source
func WithFlowIDGenerator(gen func() string) FlowOption {
	return func(o *flowOptions) {
		if gen != nil {
			o.idGenerator = gen
		}
	}
}

func buildFlowOptions(opts ...FlowOption) flowOptions {
	options := flowOptions{
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
		idGenerator:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// LoginFlow drives the citizen login. Methods are safe for concurrent use;
// at most one backend request is outstanding at a time.
type LoginFlow struct {
	mu          sync.Mutex
	client      CredentialClient
	store       *SessionStore
	transitions map[Step]map[Step]struct{}
	attempt     LoginAttempt
	// epoch advances on every reset so late responses can be told apart
	epoch  uint64
	closed bool
	opts   flowOptions
}

// NewLoginFlow returns a flow at StepMobileEntry
func NewLoginFlow(client CredentialClient, store *SessionStore, opts ...FlowOption) *LoginFlow {
	options := buildFlowOptions(opts...)
	if store == nil {
		store = NewSessionStore(nil, WithSessionLogger(options.logger))
	}
	return &LoginFlow{
		client: client,
		store:  store,
		transitions: map[Step]map[Step]struct{}{
			StepMobileEntry: {
				StepOtpEntry:   {},
				StepAdminEntry: {},
			},
			StepOtpEntry: {
				StepMobileEntry:   {},
				StepRegistration:  {},
				StepAdminEntry:    {},
				StepAuthenticated: {},
			},
			StepRegistration: {
				StepMobileEntry:   {},
				StepAdminEntry:    {},
				StepAuthenticated: {},
			},
			StepAdminEntry: {
				StepMobileEntry:   {},
				StepAuthenticated: {},
			},
		},
		attempt: LoginAttempt{
			FlowID: options.idGenerator(),
			Step:   StepMobileEntry,
		},
		opts: options,
	}
}

// ID returns the flow correlation ID
func (f *LoginFlow) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt.FlowID
}

// Snapshot returns a copy of the current attempt
func (f *LoginFlow) Snapshot() LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempt
}

// Closed reports whether the flow was disposed or completed
func (f *LoginFlow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SubmitMobile requests a code for mobile. On success the flow moves to
// StepOtpEntry with any dev code attached.
func (f *LoginFlow) SubmitMobile(ctx context.Context, mobile string) (LoginAttempt, error) {
	mobile = strings.TrimSpace(mobile)

	epoch, snap, err := f.begin(StepMobileEntry, func(a *LoginAttempt) error {
		if err := ValidateMobile(mobile); err != nil {
			return err
		}
		a.Mobile = mobile
		return nil
	})
	if err != nil {
		return snap, err
	}

	dispatch, err := f.client.RequestCode(ctx, mobile)
	if err == nil && !dispatch.Accepted {
		err = NewRejectedError(ReasonOther, noticeSendFailed, 0)
	}

	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		snap := f.attempt
		f.mu.Unlock()
		f.opts.logger.Debug("dropping code request response", "flow", snap.FlowID)
		return snap, stale
	}
	f.attempt.Busy = false

	if err != nil {
		f.attempt.Notice = noticeFor(err, noticeSendFailed)
		snap := f.attempt
		f.mu.Unlock()

		f.record(ctx, ActivityEvent{
			EventType: ActivityEventCodeRejected,
			FlowID:    snap.FlowID,
			FromStep:  StepMobileEntry,
			ToStep:    StepMobileEntry,
			Metadata:  failureMetadata(snap.Mobile, err),
		})
		return snap, err
	}

	f.attempt.Code = ""
	f.attempt.DevCode = dispatch.DevCode
	f.attempt.Notice = ""
	change, err := f.moveLocked(StepOtpEntry, "code_sent")
	snap = f.attempt
	f.mu.Unlock()
	if err != nil {
		return snap, err
	}

	f.record(ctx, ActivityEvent{
		EventType: ActivityEventCodeRequested,
		FlowID:    snap.FlowID,
		FromStep:  StepMobileEntry,
		ToStep:    StepOtpEntry,
		Metadata: map[string]any{
			"mobile":   MaskMobile(snap.Mobile),
			"dev_code": snap.DevCode != "",
		},
	})
	f.emit(ctx, change)
	return snap, nil
}

// SubmitCode verifies code for the mobile entered earlier. A new mobile
// number moves the flow to StepRegistration; a wrong or expired code is
// cleared and must be entered again.
func (f *LoginFlow) SubmitCode(ctx context.Context, code string) (LoginAttempt, error) {
	code = strings.TrimSpace(code)

	var mobile string
	epoch, snap, err := f.begin(StepOtpEntry, func(a *LoginAttempt) error {
		if err := ValidateCode(code); err != nil {
			return err
		}
		a.Code = code
		mobile = a.Mobile
		return nil
	})
	if err != nil {
		return snap, err
	}

	grant, err := f.client.VerifyCode(ctx, mobile, code, "")
	if err == nil {
		return f.complete(ctx, epoch, StepOtpEntry, grant)
	}

	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		snap := f.attempt
		f.mu.Unlock()
		return snap, stale
	}
	f.attempt.Busy = false
	f.attempt.Notice = noticeFor(err, noticeVerifyFailed)

	var change *StepChange
	eventType := ActivityEventLoginFailure
	if rejection, ok := AsRejected(err); ok {
		switch rejection.Reason {
		case ReasonNewUser:
			eventType = ActivityEventRegistrationRequired
			change, err = f.moveLockedKeep(StepRegistration, "registration_required", err)
		case ReasonCodeInvalid, ReasonCodeExpired:
			eventType = ActivityEventCodeInvalid
			f.attempt.Code = ""
		}
	}
	snap = f.attempt
	f.mu.Unlock()

	f.record(ctx, ActivityEvent{
		EventType: eventType,
		FlowID:    snap.FlowID,
		FromStep:  StepOtpEntry,
		ToStep:    snap.Step,
		Metadata:  failureMetadata(snap.Mobile, err),
	})
	f.emit(ctx, change)
	return snap, err
}

// SubmitName completes registration of a new citizen with the code that
// was provisionally accepted.
func (f *LoginFlow) SubmitName(ctx context.Context, fullName string) (LoginAttempt, error) {
	fullName = strings.TrimSpace(fullName)

	var mobile, code string
	epoch, snap, err := f.begin(StepRegistration, func(a *LoginAttempt) error {
		if err := ValidateFullName(fullName); err != nil {
			return err
		}
		a.FullName = fullName
		mobile, code = a.Mobile, a.Code
		return nil
	})
	if err != nil {
		return snap, err
	}

	grant, err := f.client.VerifyCode(ctx, mobile, code, fullName)
	if err == nil {
		return f.complete(ctx, epoch, StepRegistration, grant)
	}

	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		snap := f.attempt
		f.mu.Unlock()
		return snap, stale
	}
	f.attempt.Busy = false
	f.attempt.Notice = noticeFor(err, noticeRegFailed)

	var change *StepChange
	eventType := ActivityEventLoginFailure
	if rejection, ok := AsRejected(err); ok {
		switch rejection.Reason {
		case ReasonCodeInvalid, ReasonCodeExpired:
			// the code is spent, a fresh request cycle is needed
			eventType = ActivityEventCodeInvalid
			f.attempt.Code = ""
			f.attempt.DevCode = ""
			change, err = f.moveLockedKeep(StepMobileEntry, "code_rejected", err)
		}
	}
	snap = f.attempt
	f.mu.Unlock()

	f.record(ctx, ActivityEvent{
		EventType: eventType,
		FlowID:    snap.FlowID,
		FromStep:  StepRegistration,
		ToStep:    snap.Step,
		Metadata:  failureMetadata(snap.Mobile, err),
	})
	f.emit(ctx, change)
	return snap, err
}

// SubmitAdmin runs the admin credential exchange from StepAdminEntry.
func (f *LoginFlow) SubmitAdmin(ctx context.Context, username, password string) (LoginAttempt, error) {
	epoch, snap, err := f.begin(StepAdminEntry, func(a *LoginAttempt) error {
		return ValidateAdminCredentials(username, password)
	})
	if err != nil {
		return snap, err
	}

	grant, err := f.client.AdminLogin(ctx, strings.TrimSpace(username), password)
	if err == nil {
		return f.complete(ctx, epoch, StepAdminEntry, grant)
	}

	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		snap := f.attempt
		f.mu.Unlock()
		return snap, stale
	}
	f.attempt.Busy = false
	f.attempt.Notice = noticeFor(err, noticeLoginFailed)
	snap = f.attempt
	f.mu.Unlock()

	f.record(ctx, ActivityEvent{
		EventType: ActivityEventAdminLoginFailure,
		FlowID:    snap.FlowID,
		Identity:  IdentityAdmin,
		FromStep:  StepAdminEntry,
		ToStep:    StepAdminEntry,
		Metadata:  failureMetadata("", err),
	})
	return snap, err
}

// StartOver returns to StepMobileEntry and clears the code, dev code and
// name. Any in flight response is dropped. The backend may still honour a
// discarded code until it expires.
func (f *LoginFlow) StartOver(ctx context.Context) (LoginAttempt, error) {
	return f.reset(ctx, "start_over", func(a *LoginAttempt) (Step, error) {
		a.Code = ""
		a.DevCode = ""
		a.FullName = ""
		return StepMobileEntry, nil
	})
}

// ChangeMobile leaves StepOtpEntry to edit the number. Only the code and
// dev code are cleared.
func (f *LoginFlow) ChangeMobile(ctx context.Context) (LoginAttempt, error) {
	return f.reset(ctx, "change_mobile", func(a *LoginAttempt) (Step, error) {
		if a.Step != StepOtpEntry {
			return "", stepError(a.Step, StepOtpEntry)
		}
		a.Code = ""
		a.DevCode = ""
		return StepMobileEntry, nil
	})
}

// SwitchToAdmin moves to the admin credential form.
func (f *LoginFlow) SwitchToAdmin(ctx context.Context) (LoginAttempt, error) {
	return f.reset(ctx, "switch_admin", func(a *LoginAttempt) (Step, error) {
		a.Code = ""
		a.DevCode = ""
		a.FullName = ""
		return StepAdminEntry, nil
	})
}

// SwitchToCitizen leaves the admin form for StepMobileEntry.
func (f *LoginFlow) SwitchToCitizen(ctx context.Context) (LoginAttempt, error) {
	return f.reset(ctx, "switch_citizen", func(a *LoginAttempt) (Step, error) {
		if a.Step != StepAdminEntry {
			return "", stepError(a.Step, StepAdminEntry)
		}
		return StepMobileEntry, nil
	})
}

// Dispose discards the attempt. Responses still in flight are ignored and
// never write a session.
func (f *LoginFlow) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.epoch++
	f.attempt = LoginAttempt{FlowID: f.attempt.FlowID, Step: f.attempt.Step}
}

// begin checks the flow can accept a submission from step, applies prepare
// and marks the flow busy. It returns the epoch the request belongs to.
func (f *LoginFlow) begin(step Step, prepare func(a *LoginAttempt) error) (uint64, LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, f.attempt, ErrFlowClosed
	}
	if f.attempt.Busy {
		return 0, f.attempt, ErrFlowBusy
	}
	if f.attempt.Step != step {
		return 0, f.attempt, stepError(f.attempt.Step, step)
	}

	if err := prepare(&f.attempt); err != nil {
		f.attempt.Notice = Notice(err)
		return 0, f.attempt, err
	}

	f.attempt.Busy = true
	f.attempt.Notice = ""
	return f.epoch, f.attempt, nil
}

// complete writes the session for a successful exchange and closes the flow.
func (f *LoginFlow) complete(ctx context.Context, epoch uint64, from Step, grant Grant) (LoginAttempt, error) {
	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		snap := f.attempt
		f.mu.Unlock()
		f.opts.logger.Debug("dropping late grant", "flow", snap.FlowID)
		return snap, stale
	}

	if err := expectIdentity(from, grant.Identity); err != nil {
		f.attempt.Busy = false
		f.attempt.Notice = Notice(err)
		snap := f.attempt
		f.mu.Unlock()
		return snap, err
	}
	flowID := f.attempt.FlowID
	mobile := f.attempt.Mobile
	f.mu.Unlock()

	// busy stays set while the store writes so nothing else is submitted
	if err := f.store.Establish(ctx, grant.Identity, grant.Token); err != nil {
		f.mu.Lock()
		if stale := f.staleLocked(epoch); stale != nil {
			snap := f.attempt
			f.mu.Unlock()
			return snap, stale
		}
		f.attempt.Busy = false
		f.attempt.Notice = Notice(err)
		snap := f.attempt
		f.mu.Unlock()
		f.opts.logger.Error("failed to establish session", "flow", flowID, "error", err)
		return snap, err
	}

	f.mu.Lock()
	if stale := f.staleLocked(epoch); stale != nil {
		// reset or disposed while the store was writing
		snap := f.attempt
		f.mu.Unlock()
		f.rollback(ctx, flowID, grant.Token)
		return snap, stale
	}
	prev := f.attempt.Step
	f.attempt = LoginAttempt{FlowID: flowID, Step: StepAuthenticated}
	f.closed = true
	f.epoch++
	snap := f.attempt
	f.mu.Unlock()

	eventType := ActivityEventLoginSuccess
	if grant.Identity.Kind() == IdentityAdmin {
		eventType = ActivityEventAdminLoginSuccess
	}
	f.record(ctx, ActivityEvent{
		EventType: eventType,
		FlowID:    flowID,
		Identity:  grant.Identity.Kind(),
		AccountID: grant.Identity.ID(),
		FromStep:  prev,
		ToStep:    StepAuthenticated,
		Metadata: map[string]any{
			"registered": from == StepRegistration,
			"mobile":     MaskMobile(mobile),
		},
	})
	f.emit(ctx, &StepChange{
		FlowID:  flowID,
		From:    prev,
		To:      StepAuthenticated,
		Reason:  "authenticated",
		Attempt: snap,
	})
	return snap, nil
}

// rollback drops a session written by a commit that lost to a reset.
func (f *LoginFlow) rollback(ctx context.Context, flowID, token string) {
	revoked, err := f.store.Revoke(ctx, token)
	if err != nil {
		f.opts.logger.Error("failed to roll back late session", "flow", flowID, "error", err)
		return
	}
	if revoked {
		f.opts.logger.Debug("rolled back late session", "flow", flowID)
	}
}

func (f *LoginFlow) reset(ctx context.Context, reason string, apply func(a *LoginAttempt) (Step, error)) (LoginAttempt, error) {
	f.mu.Lock()
	if f.closed {
		snap := f.attempt
		f.mu.Unlock()
		return snap, ErrFlowClosed
	}

	next := f.attempt
	target, err := apply(&next)
	if err != nil {
		snap := f.attempt
		f.mu.Unlock()
		return snap, err
	}
	if next.Step != target && !f.canTransition(next.Step, target) {
		snap := f.attempt
		f.mu.Unlock()
		return snap, annotate(ErrInvalidTransition, map[string]any{
			"from": next.Step,
			"to":   target,
		})
	}

	from := f.attempt.Step
	f.epoch++
	next.Busy = false
	next.Notice = ""
	next.Step = target
	f.attempt = next
	snap := f.attempt
	f.mu.Unlock()

	if from != target {
		f.emit(ctx, &StepChange{
			FlowID:  snap.FlowID,
			From:    from,
			To:      target,
			Reason:  reason,
			Attempt: snap,
		})
	}
	return snap, nil
}

// staleLocked reports whether a response for epoch must be dropped.
func (f *LoginFlow) staleLocked(epoch uint64) error {
	if f.closed {
		return ErrFlowClosed
	}
	if epoch != f.epoch {
		return ErrFlowReset
	}
	return nil
}

func (f *LoginFlow) canTransition(from, to Step) bool {
	if allowed, ok := f.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// moveLocked changes step. The caller holds f.mu.
func (f *LoginFlow) moveLocked(to Step, reason string) (*StepChange, error) {
	from := f.attempt.Step
	if from == to {
		return nil, nil
	}
	if !f.canTransition(from, to) {
		return nil, annotate(ErrInvalidTransition, map[string]any{
			"from": from,
			"to":   to,
		})
	}
	f.attempt.Step = to
	return &StepChange{
		FlowID:  f.attempt.FlowID,
		From:    from,
		To:      to,
		Reason:  reason,
		Attempt: f.attempt,
	}, nil
}

// moveLockedKeep moves like moveLocked and keeps cause as the caller's error
// unless the move itself is rejected.
func (f *LoginFlow) moveLockedKeep(to Step, reason string, cause error) (*StepChange, error) {
	change, err := f.moveLocked(to, reason)
	if err != nil {
		f.opts.logger.Error("login flow transition rejected", "from", f.attempt.Step, "to", to, "error", err)
		return nil, cause
	}
	return change, cause
}

func (f *LoginFlow) emit(ctx context.Context, change *StepChange) {
	if change == nil {
		return
	}
	f.record(ctx, ActivityEvent{
		EventType: ActivityEventStepChanged,
		FlowID:    change.FlowID,
		FromStep:  change.From,
		ToStep:    change.To,
		Metadata:  map[string]any{"reason": change.Reason},
	})
	for _, observer := range f.opts.observers {
		observer(ctx, *change)
	}
}

func (f *LoginFlow) record(ctx context.Context, event ActivityEvent) {
	event.OccurredAt = f.opts.now()
	recordActivity(ctx, f.opts.activitySink, f.opts.logger, event)
}

func stepError(current, expected Step) error {
	return annotate(ErrInvalidStep, map[string]any{
		"step":     current,
		"expected": expected,
	})
}

func expectIdentity(from Step, identity Identity) error {
	if identity == nil {
		return annotate(ErrUnexpectedIdentity, map[string]any{"reason": "identity missing"})
	}
	want := IdentityCitizen
	if from == StepAdminEntry {
		want = IdentityAdmin
	}
	if identity.Kind() != want {
		return annotate(ErrUnexpectedIdentity, map[string]any{
			"expected": want,
			"received": identity.Kind(),
		})
	}
	return nil
}

// noticeFor picks the message shown for a failed request.
func noticeFor(err error, fallback string) string {
	if IsNetworkError(err) {
		return NetworkMessage
	}
	if rejection, ok := AsRejected(err); ok {
		if strings.TrimSpace(rejection.Message) != "" {
			return rejection.Message
		}
		return fallback
	}
	if msg := Notice(err); msg != "" {
		return msg
	}
	return fallback
}

func failureMetadata(mobile string, err error) map[string]any {
	meta := map[string]any{}
	if mobile != "" {
		meta["mobile"] = MaskMobile(mobile)
	}
	if rejection, ok := AsRejected(err); ok {
		meta["reason"] = string(rejection.Reason)
		meta["status"] = rejection.Status
	} else if IsNetworkError(err) {
		meta["reason"] = "network"
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		meta["text_code"] = richErr.TextCode
	}
	return meta
}
