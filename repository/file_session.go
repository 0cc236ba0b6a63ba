package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/gram-panchayat/go-portal-auth"
)

// FileSessionRepository keeps the session snapshot in a JSON file readable
// by the current user only.
type FileSessionRepository struct {
	path string
}

var _ auth.SessionPersister = (*FileSessionRepository)(nil)

// NewFileSessionRepository stores the snapshot at path
func NewFileSessionRepository(path string) *FileSessionRepository {
	return &FileSessionRepository{path: path}
}

// Path returns the snapshot location
func (r *FileSessionRepository) Path() string {
	return r.path
}

// LoadSession implements auth.SessionPersister.
func (r *FileSessionRepository) LoadSession(ctx context.Context) (*auth.SessionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read session file")
	}

	var snap auth.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, goerrors.Wrap(err, auth.ErrCorruptSnapshot.Category, auth.ErrCorruptSnapshot.Message).
			WithTextCode(auth.ErrCorruptSnapshot.TextCode)
	}
	return &snap, nil
}

// SaveSession implements auth.SessionPersister. The file is replaced
// atomically so a crash never leaves half a snapshot.
func (r *FileSessionRepository) SaveSession(ctx context.Context, snapshot auth.SessionSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session directory")
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write session file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to protect session file")
	}
	if err := tmp.Close(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write session file")
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to replace session file")
	}
	return nil
}

// ClearSession implements auth.SessionPersister.
func (r *FileSessionRepository) ClearSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove session file")
	}
	return nil
}
