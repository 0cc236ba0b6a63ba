package auth

import (
	"context"
	"strings"
	"sync"
)

// AdminFlow is the username/password login for portal staff. It shares the
// SessionStore with LoginFlow. There is no client side retry limit.
type AdminFlow struct {
	mu     sync.Mutex
	client CredentialClient
	store  *SessionStore
	id     string
	busy   bool
	notice string
	epoch  uint64
	closed bool
	opts   flowOptions
}

// NewAdminFlow returns a ready flow
func NewAdminFlow(client CredentialClient, store *SessionStore, opts ...FlowOption) *AdminFlow {
	options := buildFlowOptions(opts...)
	if store == nil {
		store = NewSessionStore(nil, WithSessionLogger(options.logger))
	}
	return &AdminFlow{
		client: client,
		store:  store,
		id:     options.idGenerator(),
		opts:   options,
	}
}

// Submit exchanges the credentials for a session. Failures keep the form
// editable and carry the backend message verbatim.
func (a *AdminFlow) Submit(ctx context.Context, username, password string) (Session, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return Session{}, ErrFlowClosed
	}
	if a.busy {
		a.mu.Unlock()
		return Session{}, ErrFlowBusy
	}
	if err := ValidateAdminCredentials(username, password); err != nil {
		a.notice = Notice(err)
		a.mu.Unlock()
		return Session{}, err
	}
	a.busy = true
	a.notice = ""
	epoch := a.epoch
	a.mu.Unlock()

	username = strings.TrimSpace(username)
	grant, err := a.client.AdminLogin(ctx, username, password)

	a.mu.Lock()
	if stale := a.staleLocked(epoch); stale != nil {
		a.mu.Unlock()
		return Session{}, stale
	}
	if err == nil {
		err = expectIdentity(StepAdminEntry, grant.Identity)
	}
	if err != nil {
		a.busy = false
		a.notice = noticeFor(err, noticeLoginFailed)
		a.mu.Unlock()

		a.record(ctx, ActivityEvent{
			EventType: ActivityEventAdminLoginFailure,
			Identity:  IdentityAdmin,
			Metadata:  mergeMetadata(failureMetadata("", err), map[string]any{"username": username}),
		})
		return Session{}, err
	}
	a.mu.Unlock()

	if err := a.store.Establish(ctx, grant.Identity, grant.Token); err != nil {
		a.mu.Lock()
		if stale := a.staleLocked(epoch); stale != nil {
			a.mu.Unlock()
			return Session{}, stale
		}
		a.busy = false
		a.notice = Notice(err)
		a.mu.Unlock()
		a.opts.logger.Error("failed to establish admin session", "flow", a.id, "error", err)
		return Session{}, err
	}

	a.mu.Lock()
	if stale := a.staleLocked(epoch); stale != nil {
		a.mu.Unlock()
		if _, err := a.store.Revoke(ctx, grant.Token); err != nil {
			a.opts.logger.Error("failed to roll back late admin session", "flow", a.id, "error", err)
		}
		return Session{}, stale
	}
	a.busy = false
	a.mu.Unlock()

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventAdminLoginSuccess,
		Identity:  IdentityAdmin,
		AccountID: grant.Identity.ID(),
		Metadata: map[string]any{
			"role": string(grant.Identity.Role()),
		},
	})

	return Session{Token: grant.Token, Identity: grant.Identity}, nil
}

// Reset drops any in flight response and clears the notice.
func (a *AdminFlow) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch++
	a.busy = false
	a.notice = ""
}

// Dispose closes the flow. Late responses never write a session.
func (a *AdminFlow) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.epoch++
	a.busy = false
}

func (a *AdminFlow) staleLocked(epoch uint64) error {
	if a.closed {
		return ErrFlowClosed
	}
	if epoch != a.epoch {
		return ErrFlowReset
	}
	return nil
}

// Busy reports whether a request is in flight
func (a *AdminFlow) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Notice returns the last message to show
func (a *AdminFlow) Notice() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notice
}

func (a *AdminFlow) record(ctx context.Context, event ActivityEvent) {
	event.FlowID = a.id
	event.FromStep = StepAdminEntry
	event.ToStep = StepAdminEntry
	if event.EventType == ActivityEventAdminLoginSuccess {
		event.ToStep = StepAuthenticated
	}
	event.OccurredAt = a.opts.now()
	recordActivity(ctx, a.opts.activitySink, a.opts.logger, event)
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}
