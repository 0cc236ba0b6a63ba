package auth_test

import (
	"context"
	"errors"
	"sync"

	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/stretchr/testify/mock"
)

// MockCredentialClient implements auth.CredentialClient
type MockCredentialClient struct {
	mock.Mock
}

func (m *MockCredentialClient) RequestCode(ctx context.Context, mobile string) (auth.CodeDispatch, error) {
	args := m.Called(ctx, mobile)
	return args.Get(0).(auth.CodeDispatch), args.Error(1)
}

func (m *MockCredentialClient) VerifyCode(ctx context.Context, mobile, code, fullName string) (auth.Grant, error) {
	args := m.Called(ctx, mobile, code, fullName)
	return args.Get(0).(auth.Grant), args.Error(1)
}

func (m *MockCredentialClient) AdminLogin(ctx context.Context, username, password string) (auth.Grant, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(auth.Grant), args.Error(1)
}

// recordingSink keeps every activity event it receives
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) find(eventType auth.ActivityEventType) (auth.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return e, true
		}
	}
	return auth.ActivityEvent{}, false
}

// failingPersister fails the operations it is told to
type failingPersister struct {
	auth.MemoryPersister
	loadErr  error
	saveErr  error
	clearErr error
	snapshot *auth.SessionSnapshot
}

func (p *failingPersister) LoadSession(ctx context.Context) (*auth.SessionSnapshot, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.snapshot != nil {
		snap := *p.snapshot
		return &snap, nil
	}
	return p.MemoryPersister.LoadSession(ctx)
}

func (p *failingPersister) SaveSession(ctx context.Context, snapshot auth.SessionSnapshot) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	return p.MemoryPersister.SaveSession(ctx, snapshot)
}

func (p *failingPersister) ClearSession(ctx context.Context) error {
	if p.clearErr != nil {
		return p.clearErr
	}
	p.snapshot = nil
	return p.MemoryPersister.ClearSession(ctx)
}

// blockingPersister parks the first save until release is closed
type blockingPersister struct {
	auth.MemoryPersister
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPersister() *blockingPersister {
	return &blockingPersister{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingPersister) SaveSession(ctx context.Context, snapshot auth.SessionSnapshot) error {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return p.MemoryPersister.SaveSession(ctx, snapshot)
}

var errDiskFull = errors.New("disk full")

const (
	testMobile = "9876543210"
	testCode   = "123456"
	testToken  = "citizen-token"
	adminToken = "admin-token"
)

func citizenGrant(id, name string) auth.Grant {
	return auth.Grant{
		Identity: auth.CitizenIdentity{AccountID: id, Mobile: testMobile, FullName: name},
		Token:    testToken,
	}
}

func adminGrant(role auth.Role) auth.Grant {
	return auth.Grant{
		Identity: auth.AdminIdentity{AccountID: "1", Username: "admin", FullName: "Panchayat Admin", UserRole: role},
		Token:    adminToken,
	}
}

func quietStore(persister auth.SessionPersister, opts ...auth.SessionStoreOption) *auth.SessionStore {
	opts = append([]auth.SessionStoreOption{auth.WithSessionLogger(auth.NopLogger())}, opts...)
	return auth.NewSessionStore(persister, opts...)
}
