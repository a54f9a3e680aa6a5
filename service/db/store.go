package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mintrelay/mintrelay/service/metrics"
)

// Store provides database operations for the submission log. It records only
// public facts about submitted transactions (signatures, addresses, amounts);
// secret key material never reaches this layer.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Submission represents one submitted transaction in the log.
type Submission struct {
	Signature string
	Kind      string // "create_mint" or "transfer"
	Mint      *string
	FeePayer  string
	Amount    *int64
	Slot      *int64
	Status    string // "confirmed", "rejected", "timeout"
	Error     *string
	CreatedAt time.Time
}

// RecordSubmissionParams contains the parameters for recording a submission.
type RecordSubmissionParams struct {
	Signature string
	Kind      string
	Mint      *string
	FeePayer  string
	Amount    *int64
	Slot      *int64
	Status    string
	Error     *string
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	signature  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	mint       TEXT,
	fee_payer  TEXT NOT NULL,
	amount     BIGINT,
	slot       BIGINT,
	status     TEXT NOT NULL,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS submissions_fee_payer_idx ON submissions (fee_payer, created_at DESC);
`

// EnsureSchema creates the submissions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// RecordSubmission inserts a submission into the log. A duplicate signature
// updates the status and slot, which happens when a timed-out submission is
// later resolved by a re-query.
func (s *Store) RecordSubmission(ctx context.Context, params RecordSubmissionParams) (*Submission, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO submissions (signature, kind, mint, fee_payer, amount, slot, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature) DO UPDATE SET status = EXCLUDED.status, slot = EXCLUDED.slot, error = EXCLUDED.error
		RETURNING signature, kind, mint, fee_payer, amount, slot, status, error, created_at`,
		params.Signature, params.Kind, params.Mint, params.FeePayer, params.Amount, params.Slot, params.Status, params.Error,
	)
	sub, err := scanSubmission(row)
	if s.metrics != nil {
		s.metrics.RecordDBQuery("record_submission", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}
	return sub, nil
}

// GetSubmission retrieves a submission by transaction signature.
func (s *Store) GetSubmission(ctx context.Context, signature string) (*Submission, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT signature, kind, mint, fee_payer, amount, slot, status, error, created_at
		FROM submissions WHERE signature = $1`,
		signature,
	)
	sub, err := scanSubmission(row)
	if s.metrics != nil {
		s.metrics.RecordDBQuery("get_submission", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubmissions retrieves submissions ordered newest first.
func (s *Store) ListSubmissions(ctx context.Context, limit, offset int32) ([]*Submission, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT signature, kind, mint, fee_payer, amount, slot, status, error, created_at
		FROM submissions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if s.metrics != nil {
		s.metrics.RecordDBQuery("list_submissions", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var sub Submission
	err := row.Scan(
		&sub.Signature,
		&sub.Kind,
		&sub.Mint,
		&sub.FeePayer,
		&sub.Amount,
		&sub.Slot,
		&sub.Status,
		&sub.Error,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
