package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultSlot is the record key used when one session is kept per database
const DefaultSlot = "current"

// SessionRecordModel is the Bun model for persisted sessions.
type SessionRecordModel struct {
	bun.BaseModel `bun:"table:portal_sessions"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	Slot       string    `bun:"slot,notnull,unique"`
	Kind       string    `bun:"kind,notnull"`
	Token      string    `bun:"token,notnull"`
	AccountID  string    `bun:"account_id"`
	Mobile     string    `bun:"mobile"`
	FullName   string    `bun:"full_name"`
	Username   string    `bun:"username"`
	Email      string    `bun:"email"`
	Department string    `bun:"department"`
	Role       string    `bun:"role"`
	StoredAt   time.Time `bun:"stored_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// BunSessionRepository implements auth.SessionPersister using Bun.
type BunSessionRepository struct {
	db   *bun.DB
	slot string
}

var _ auth.SessionPersister = (*BunSessionRepository)(nil)

// NewBunSessionRepository creates a new repository. An empty slot uses
// DefaultSlot.
func NewBunSessionRepository(db *bun.DB, slot string) *BunSessionRepository {
	if slot == "" {
		slot = DefaultSlot
	}
	return &BunSessionRepository{db: db, slot: slot}
}

// OpenSQLite opens dsn with the sqlite shim driver
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open session database")
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates the sessions table if needed
func (r *BunSessionRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*SessionRecordModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create sessions table")
	}
	return nil
}

// LoadSession implements auth.SessionPersister.
func (r *BunSessionRepository) LoadSession(ctx context.Context) (*auth.SessionSnapshot, error) {
	var model SessionRecordModel
	err := r.db.NewSelect().
		Model(&model).
		Where("slot = ?", r.slot).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session record")
	}
	return r.toSnapshot(&model), nil
}

// SaveSession implements auth.SessionPersister.
func (r *BunSessionRepository) SaveSession(ctx context.Context, snapshot auth.SessionSnapshot) error {
	model := r.fromSnapshot(snapshot)
	model.UpdatedAt = time.Now().UTC()

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (slot) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("token = EXCLUDED.token").
		Set("account_id = EXCLUDED.account_id").
		Set("mobile = EXCLUDED.mobile").
		Set("full_name = EXCLUDED.full_name").
		Set("username = EXCLUDED.username").
		Set("email = EXCLUDED.email").
		Set("department = EXCLUDED.department").
		Set("role = EXCLUDED.role").
		Set("stored_at = EXCLUDED.stored_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save session record")
	}
	return nil
}

// ClearSession implements auth.SessionPersister.
func (r *BunSessionRepository) ClearSession(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*SessionRecordModel)(nil)).
		Where("slot = ?", r.slot).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete session record")
	}
	return nil
}

func (r *BunSessionRepository) toSnapshot(m *SessionRecordModel) *auth.SessionSnapshot {
	return &auth.SessionSnapshot{
		Kind:       auth.IdentityKind(m.Kind),
		Token:      m.Token,
		AccountID:  m.AccountID,
		Mobile:     m.Mobile,
		FullName:   m.FullName,
		Username:   m.Username,
		Email:      m.Email,
		Department: m.Department,
		Role:       auth.Role(m.Role),
		StoredAt:   m.StoredAt,
	}
}

func (r *BunSessionRepository) fromSnapshot(s auth.SessionSnapshot) *SessionRecordModel {
	storedAt := s.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	return &SessionRecordModel{
		ID:         uuid.New(),
		Slot:       r.slot,
		Kind:       string(s.Kind),
		Token:      s.Token,
		AccountID:  s.AccountID,
		Mobile:     s.Mobile,
		FullName:   s.FullName,
		Username:   s.Username,
		Email:      s.Email,
		Department: s.Department,
		Role:       string(s.Role),
		StoredAt:   storedAt,
	}
}
