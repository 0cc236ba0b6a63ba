package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const TextCodeInvalidSession = "INVALID_SESSION"

// ErrInvalidSession is returned when Establish receives half a session.
var ErrInvalidSession = goerrors.New("session requires both identity and token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidSession).
	WithCode(http.StatusBadRequest)

// SessionState is what guards evaluate. Resolved is false until the
// persisted snapshot has been read.
type SessionState struct {
	Resolved bool
	Session  Session
}

// Present reports whether a session is held
func (s SessionState) Present() bool {
	return !s.Session.IsZero()
}

// SessionObserver is notified synchronously after every change. Observers
// run on the writer goroutine and must not call Establish, Clear or Load.
type SessionObserver func(state SessionState)

// SessionStoreOption customizes store construction.
type SessionStoreOption func(*SessionStore)

// WithSessionLogger sets the store logger
func WithSessionLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionActivitySink sets the ActivitySink used for session events.
func WithSessionActivitySink(sink ActivitySink) SessionStoreOption {
	return func(s *SessionStore) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SessionStore owns the current Session. Identity and token are always set
// and cleared together.
type SessionStore struct {
	// writeMu serializes writers and the notifications they emit
	writeMu sync.Mutex

	mu       sync.RWMutex
	session  Session
	resolved bool

	observersMu sync.Mutex
	observers   map[uint64]SessionObserver
	nextID      uint64

	persister    SessionPersister
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewSessionStore returns an unresolved store. A nil persister keeps the
// session in memory only.
func NewSessionStore(persister SessionPersister, opts ...SessionStoreOption) *SessionStore {
	if persister == nil {
		persister = NewMemoryPersister()
	}

	s := &SessionStore{
		persister:    persister,
		observers:    map[uint64]SessionObserver{},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Load reads the persisted snapshot and marks the store resolved. A corrupt
// snapshot is discarded and the store resolves empty. Read failures also
// resolve the store empty, so guards stop waiting, and are returned.
func (s *SessionStore) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.persister.LoadSession(ctx)
	if err != nil && HasTextCode(err, TextCodeCorruptSnapshot) {
		s.logger.Warn("discarding unreadable session", "error", err)
		if clearErr := s.persister.ClearSession(ctx); clearErr != nil {
			s.logger.Error("failed to clear corrupt session", "error", clearErr)
		}
		snap, err = nil, nil
	}
	if err != nil {
		s.set(Session{})
		s.notify()
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load persisted session")
	}

	session := Session{}
	if snap != nil {
		restored, err := snap.Session()
		if err != nil {
			s.logger.Warn("discarding persisted session", "error", err)
			if clearErr := s.persister.ClearSession(ctx); clearErr != nil {
				s.logger.Error("failed to clear corrupt session", "error", clearErr)
			}
		} else {
			session = restored
		}
	}

	s.set(session)
	s.notify()

	if !session.IsZero() {
		recordActivity(ctx, s.activitySink, s.logger, s.sessionEvent(ActivityEventSessionRestored, session))
	}

	return nil
}

// Establish persists the session, then publishes it. Observers have been
// notified when Establish returns. If persistence fails the store is left
// unchanged.
func (s *SessionStore) Establish(ctx context.Context, identity Identity, token string) error {
	if identity == nil || strings.TrimSpace(token) == "" {
		return ErrInvalidSession
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session := Session{Token: token, Identity: identity}
	if err := s.persister.SaveSession(ctx, SnapshotFromSession(session, s.now())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist session")
	}

	s.set(session)
	s.notify()

	recordActivity(ctx, s.activitySink, s.logger, s.sessionEvent(ActivityEventSessionEstablished, session))
	return nil
}

// Clear drops the session. Clearing an empty store does nothing. The in
// memory session is dropped even when persistence fails so a rejected token
// is never reused; the persistence error is still returned.
func (s *SessionStore) Clear(ctx context.Context) error {
	_, err := s.clearIf(ctx, func(Session) bool { return true })
	return err
}

// Revoke clears the session only while token is still the current one. It
// reports whether a session was dropped.
func (s *SessionStore) Revoke(ctx context.Context, token string) (bool, error) {
	return s.clearIf(ctx, func(current Session) bool {
		return current.Token == token
	})
}

func (s *SessionStore) clearIf(ctx context.Context, match func(Session) bool) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	previous := s.session
	s.mu.RUnlock()

	if previous.IsZero() || !match(previous) {
		return false, nil
	}

	persistErr := s.persister.ClearSession(ctx)

	s.set(Session{})
	s.notify()

	recordActivity(ctx, s.activitySink, s.logger, s.sessionEvent(ActivityEventSessionCleared, previous))

	if persistErr != nil {
		return true, goerrors.Wrap(persistErr, goerrors.CategoryInternal, "failed to clear persisted session")
	}
	return true, nil
}

// Current returns the held session without any I/O.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, !s.session.IsZero()
}

// State returns the session together with the resolution flag
func (s *SessionStore) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionState{Resolved: s.resolved, Session: s.session}
}

// Resolved reports whether Load, Establish or Clear has run
func (s *SessionStore) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// Subscribe registers an observer and returns its cancel function.
func (s *SessionStore) Subscribe(fn SessionObserver) func() {
	if fn == nil {
		return func() {}
	}

	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.observersMu.Lock()
			delete(s.observers, id)
			s.observersMu.Unlock()
		})
	}
}

func (s *SessionStore) set(session Session) {
	s.mu.Lock()
	s.session = session
	s.resolved = true
	s.mu.Unlock()
}

// notify must be called with writeMu held.
func (s *SessionStore) notify() {
	state := s.State()

	s.observersMu.Lock()
	observers := make([]SessionObserver, 0, len(s.observers))
	for i := uint64(0); i < s.nextID; i++ {
		if fn, ok := s.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	s.observersMu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (s *SessionStore) sessionEvent(eventType ActivityEventType, session Session) ActivityEvent {
	event := ActivityEvent{
		EventType:  eventType,
		OccurredAt: s.now(),
	}
	if session.Identity != nil {
		event.Identity = session.Identity.Kind()
		event.AccountID = session.Identity.ID()
	}
	return event
}
