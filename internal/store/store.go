// Package store keeps a history of execution verdicts. It is optional: the
// service runs fine without a database, it just records nothing.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const pingTimeout = 10 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id             text PRIMARY KEY,
	passed         boolean NOT NULL,
	error          text,
	execution_time double precision NOT NULL,
	test_count     integer NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now()
)`

type Store struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

// Record is one verdict worth keeping. Code itself is not stored; this
// service owns verdicts, not submissions.
type Record struct {
	ID            string
	Passed        bool
	Error         *string
	ExecutionTime float64
	TestCount     int
}

func Open(ctx context.Context, databaseURL string, log *zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "sandboxd"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info().Msg("execution history store ready")
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Save(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO executions (id, passed, error, execution_time, test_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Passed, rec.Error, rec.ExecutionTime, rec.TestCount)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.log.Info().Msg("closing execution history store")
	s.pool.Close()
}
