package auth

import (
	"context"
	"sync"
)

// MemoryPersister keeps the snapshot in process memory. It survives store
// instances but not process restarts.
type MemoryPersister struct {
	mu       sync.Mutex
	snapshot *SessionSnapshot
	saves    int
	clears   int
}

var _ SessionPersister = (*MemoryPersister)(nil)

// NewMemoryPersister returns an empty persister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) LoadSession(ctx context.Context) (*SessionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	snap := *m.snapshot
	return &snap, nil
}

func (m *MemoryPersister) SaveSession(ctx context.Context, snapshot SessionSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &snapshot
	m.saves++
	return nil
}

func (m *MemoryPersister) ClearSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.clears++
	return nil
}

// Writes returns how many saves and clears were applied
func (m *MemoryPersister) Writes() (saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.clears
}
