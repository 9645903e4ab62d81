package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/inapppay/internal/domain"
)

// Schema creates the notices table. It is safe to apply repeatedly.
//
//go:embed schema.sql
var Schema string

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() error {
	s.Db.Close()
	return nil
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveNotice inserts n, or updates the record of the same attempt sequence.
// created_at keeps the time of the first attempt.
func (s *Store) SaveNotice(ctx context.Context, n domain.Notice) error {
	now := time.Now().UTC()
	_, err := s.Db.Exec(ctx,
		`INSERT INTO notices (id, transaction_uuid, url, success, last_error, simulated, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   url = EXCLUDED.url,
		   success = EXCLUDED.success,
		   last_error = EXCLUDED.last_error,
		   attempts = EXCLUDED.attempts,
		   updated_at = EXCLUDED.updated_at`,
		n.ID, n.TransactionUUID, n.URL, n.Success, n.LastError, string(n.Simulated), n.Attempts, now,
	)
	if err != nil {
		return fmt.Errorf("save notice %s: %w", n.ID, err)
	}
	return nil
}

// ListNotices returns the notices of a transaction, oldest first.
func (s *Store) ListNotices(ctx context.Context, transactionUUID string) ([]domain.Notice, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, transaction_uuid, url, success, last_error, simulated, attempts, created_at, updated_at
		 FROM notices WHERE transaction_uuid = $1 ORDER BY created_at ASC`,
		transactionUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notices := []domain.Notice{}
	for rows.Next() {
		var n domain.Notice
		var simulated string
		if err := rows.Scan(&n.ID, &n.TransactionUUID, &n.URL, &n.Success, &n.LastError,
			&simulated, &n.Attempts, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		n.Simulated = domain.Simulated(simulated)
		notices = append(notices, n)
	}
	return notices, rows.Err()
}
