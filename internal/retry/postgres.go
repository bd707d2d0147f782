package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"launcher/internal/apperrors"
)

// PostgresStore reads and writes retry counters in the retry_states table.
//
//	CREATE TABLE retry_states (
//	  job_id                        BIGINT PRIMARY KEY,
//	  connection_id                 TEXT NOT NULL,
//	  successive_complete_failures  INT NOT NULL,
//	  total_complete_failures       INT NOT NULL,
//	  successive_partial_failures   INT NOT NULL,
//	  total_partial_failures        INT NOT NULL,
//	  updated_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect retry state db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping retry state db: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// FetchState implements StateFetcher.
func (s *PostgresStore) FetchState(ctx context.Context, jobID int64) (Counters, error) {
	const query = `
		SELECT successive_complete_failures, total_complete_failures,
		       successive_partial_failures, total_partial_failures
		FROM retry_states
		WHERE job_id = $1`

	var c Counters
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&c.SuccessiveCompleteFailures,
		&c.TotalCompleteFailures,
		&c.SuccessivePartialFailures,
		&c.TotalPartialFailures,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counters{}, apperrors.NotFound("retry state", strconv.FormatInt(jobID, 10))
	}
	if err != nil {
		return Counters{}, apperrors.Unavailable("retry.fetchState", err)
	}
	return c, nil
}

// PersistState implements StatePersister.
func (s *PostgresStore) PersistState(ctx context.Context, jobID int64, connectionID string, c Counters) error {
	const stmt = `
		INSERT INTO retry_states (
			job_id, connection_id,
			successive_complete_failures, total_complete_failures,
			successive_partial_failures, total_partial_failures)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			successive_complete_failures = EXCLUDED.successive_complete_failures,
			total_complete_failures      = EXCLUDED.total_complete_failures,
			successive_partial_failures  = EXCLUDED.successive_partial_failures,
			total_partial_failures       = EXCLUDED.total_partial_failures,
			updated_at                   = now()`

	_, err := s.pool.Exec(ctx, stmt, jobID, connectionID,
		c.SuccessiveCompleteFailures, c.TotalCompleteFailures,
		c.SuccessivePartialFailures, c.TotalPartialFailures,
	)
	if err != nil {
		return apperrors.Unavailable("retry.persistState", err)
	}
	return nil
}

// Ready implements health.ReadinessChecker.
func (s *PostgresStore) Ready(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var (
	_ StateFetcher   = (*PostgresStore)(nil)
	_ StatePersister = (*PostgresStore)(nil)
)
