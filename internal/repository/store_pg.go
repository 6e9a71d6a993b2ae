package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on a pgx pool, or on a pgx.Tx inside InTx.
type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	tx   pgx.Tx
}

// NewPgStore returns a Store backed by the given pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) Profiles() ProfileRepository   { return &pgProfileRepo{db: s.db} }
func (s *PgStore) Sessions() SessionRepository   { return &pgSessionRepo{db: s.db} }
func (s *PgStore) Anomalies() AnomalyRepository  { return &pgAnomalyRepo{db: s.db} }
func (s *PgStore) Outbox() OutboxRepository      { return &pgOutboxRepo{db: s.db} }
func (s *PgStore) AuthUsers() AuthUserRepository { return &pgAuthUserRepo{db: s.db} }

// InTx begins a transaction, commits when fn returns nil and rolls back otherwise.
func (s *PgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgStore{pool: s.pool, db: tx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *PgStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("no pool")
	}
	return s.pool.Ping(ctx)
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
