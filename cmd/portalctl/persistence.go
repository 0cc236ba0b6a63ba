package main

import (
	"context"

	"github.com/goliatone/go-errors"
	auth "github.com/gram-panchayat/go-portal-auth"
	"github.com/gram-panchayat/go-portal-auth/repository"
)

// OpenPersister returns the session backend named by cfg and a close func
func OpenPersister(ctx context.Context, cfg auth.Config) (auth.SessionPersister, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GetSessionBackend() {
	case auth.SessionBackendMemory:
		return auth.NewMemoryPersister(), noop, nil
	case auth.SessionBackendSQLite:
		db, err := repository.OpenSQLite(cfg.GetSQLiteDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewBunSessionRepository(db, repository.DefaultSlot)
		if err := repo.CreateSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	case auth.SessionBackendRedis:
		rdb, err := repository.NewRedisClient(ctx, cfg.GetRedisURL())
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisSessionRepository(rdb, cfg.GetRedisKey()), rdb.Close, nil
	case auth.SessionBackendFile, "":
		return repository.NewFileSessionRepository(cfg.GetSessionPath()), noop, nil
	default:
		return nil, nil, errors.New("unknown session backend "+cfg.GetSessionBackend(), errors.CategoryBadInput)
	}
}
