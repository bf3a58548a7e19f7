package store

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
)

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory"

// Storages groups the repositories of the sync store so they can be passed to
// the service layer as a single value. All repositories share one backend and
// join the transaction started through Transactor.
type Storages struct {
	Transactor Transactor
	Pinger     Pinger
	Classifier ErrorClassificator

	Mutations MutationRepository
	Conflicts ConflictRepository
	Sessions  SessionRepository
	Entities  EntityRepository
	Changes   ChangeRepository

	close func() error
}

// NewStorages initialises the store selected by cfg.DB.DSN:
//  1. "memory" builds the in-process store.
//  2. Anything else is a PostgreSQL DSN: the pool is opened and pinged and
//     the embedded migrations are applied.
func NewStorages(ctx context.Context, cfg config.Storage, log *logger.Logger) (*Storages, error) {
	if cfg.DB.DSN == MemoryDSN {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return NewMemoryStorages(), nil
	}

	log.Info().Msg("creating new storages...")
	db, err := NewConnectPostgres(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("postgres connection error: %w", err)
	}

	if err = db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return NewPostgresStorages(db, log), nil
}

// NewPostgresStorages wires the PostgreSQL repositories over db.
func NewPostgresStorages(db *DB, log *logger.Logger) *Storages {
	return &Storages{
		Transactor: db,
		Pinger:     db,
		Classifier: db.errorClassificator,
		Mutations:  NewMutationRepository(db, log),
		Conflicts:  NewConflictRepository(db, log),
		Sessions:   NewSessionRepository(db, log),
		Entities:   NewEntityRepository(db, log),
		Changes:    NewChangeRepository(db, log),
		close:      db.Close,
	}
}

// Close releases the backend.
func (s *Storages) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
