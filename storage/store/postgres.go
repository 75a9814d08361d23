package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"truecanvas/config"
)

const submissionColumns = `request_id, image_hash, status, stage, retry_count, error_message,
	image_id, chain_id, mint_tx_hash, token_id, token_contract, register_tx_hash,
	registered_address, mint_tx_url, register_tx_url, note, received_timestamp, updated_at`

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore connects to PostgreSQL and makes sure the schema exists
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	poolCfg.MaxConnIdleTime, poolCfg.MaxConnLifetime = cfg.ConnDurations()

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to apply schema: %w", err)
	}

	logger.Printf("Database connection pool established (max %d, min %d)", cfg.MaxConnections, cfg.MinConnections)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Open returns the store named by the DSN: "memory://" selects the in-process store
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (Store, error) {
	if cfg.DSN == MemoryDSN {
		logger.Println("Using in-memory submission store")
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, cfg, logger)
}

// InsertSubmissionBatch copies new rows in one round trip
func (s *PostgresStore) InsertSubmissionBatch(ctx context.Context, subs []*Submission) error {
	if len(subs) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(subs))
	for i, sub := range subs {
		rows[i] = []interface{}{sub.RequestID, sub.ImageHash, string(StatusReceived), sub.ReceivedTimestamp, time.Now()}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"submissions"},
		[]string{"request_id", "image_hash", "status", "received_timestamp", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
		}
		return fmt.Errorf("batch insert of %d submissions failed: %w", len(subs), err)
	}
	return nil
}

// GetSubmission loads one row
func (s *PostgresStore) GetSubmission(ctx context.Context, requestID string) (*Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE request_id = $1`, requestID)
	return scanSubmission(row, requestID)
}

// MarkProcessing claims the row in a single statement
func (s *PostgresStore) MarkProcessing(ctx context.Context, requestID string, maxRetries int) (*Submission, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE submissions SET
    status = CASE WHEN retry_count >= $2 THEN 'FAILED' ELSE 'PROCESSING' END,
    error_message = CASE WHEN retry_count >= $2 THEN $3 ELSE error_message END,
    updated_at = now()
WHERE request_id = $1 AND status IN ('RECEIVED', 'PROCESSING')
RETURNING `+submissionColumns, requestID, maxRetries, MaxRetriesMessage)

	sub, err := scanSubmission(row, requestID)
	if errors.Is(err, ErrNotFound) {
		// Already final, or never inserted
		return s.GetSubmission(ctx, requestID)
	}
	return sub, err
}

// UpdateProgress overwrites only the fields the progress carries
func (s *PostgresStore) UpdateProgress(ctx context.Context, requestID string, p Progress) error {
	return s.exec(ctx, requestID, `
UPDATE submissions SET `+progressAssignments+`, updated_at = now()
WHERE request_id = $1 AND status = 'PROCESSING'`, progressArgs(requestID, p)...)
}

// MarkForRetry returns the row to RECEIVED with one more retry counted
func (s *PostgresStore) MarkForRetry(ctx context.Context, requestID string, errMsg string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
UPDATE submissions SET status = 'RECEIVED', retry_count = retry_count + 1, error_message = $2, updated_at = now()
WHERE request_id = $1
RETURNING retry_count`, requestID, errMsg).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return 0, fmt.Errorf("mark for retry of %s failed: %w", requestID, err)
	}
	return count, nil
}

// MarkCompleted finalises the row with its last progress
func (s *PostgresStore) MarkCompleted(ctx context.Context, requestID string, p Progress) error {
	return s.exec(ctx, requestID, `
UPDATE submissions SET `+progressAssignments+`, status = 'COMPLETED', error_message = '', updated_at = now()
WHERE request_id = $1`, progressArgs(requestID, p)...)
}

// MarkFailed finalises the row with the error text
func (s *PostgresStore) MarkFailed(ctx context.Context, requestID string, p Progress, errMsg string) error {
	args := append(progressArgs(requestID, p), errMsg)
	return s.exec(ctx, requestID, `
UPDATE submissions SET `+progressAssignments+`, status = 'FAILED', error_message = $13, updated_at = now()
WHERE request_id = $1`, args...)
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.logger.Println("Closing database connection pool...")
	s.pool.Close()
}

func (s *PostgresStore) exec(ctx context.Context, requestID, sql string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update of %s failed: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return nil
}

// progressAssignments keeps a column when the matching argument is empty
const progressAssignments = `
    stage = COALESCE(NULLIF($2, ''), stage),
    image_id = COALESCE(NULLIF($3, ''), image_id),
    chain_id = COALESCE($4, chain_id),
    mint_tx_hash = COALESCE(NULLIF($5, ''), mint_tx_hash),
    token_id = COALESCE(NULLIF($6, ''), token_id),
    token_contract = COALESCE(NULLIF($7, ''), token_contract),
    register_tx_hash = COALESCE(NULLIF($8, ''), register_tx_hash),
    registered_address = COALESCE(NULLIF($9, ''), registered_address),
    mint_tx_url = COALESCE(NULLIF($10, ''), mint_tx_url),
    register_tx_url = COALESCE(NULLIF($11, ''), register_tx_url),
    note = COALESCE(NULLIF($12, ''), note)`

func progressArgs(requestID string, p Progress) []interface{} {
	var chainID *int64
	if p.ChainID != nil {
		v := int64(*p.ChainID)
		chainID = &v
	}
	return []interface{}{requestID, p.Stage, p.ImageID, chainID, p.MintTxHash, p.TokenID, p.TokenContract,
		p.RegisterTxHash, p.RegisteredAddress, p.MintTxURL, p.RegisterTxURL, p.Note}
}

func scanSubmission(row pgx.Row, requestID string) (*Submission, error) {
	var (
		sub     Submission
		status  string
		chainID *int64
	)
	err := row.Scan(&sub.RequestID, &sub.ImageHash, &status, &sub.Stage, &sub.RetryCount, &sub.ErrorMessage,
		&sub.ImageID, &chainID, &sub.MintTxHash, &sub.TokenID, &sub.TokenContract, &sub.RegisterTxHash,
		&sub.RegisteredAddress, &sub.MintTxURL, &sub.RegisterTxURL, &sub.Note, &sub.ReceivedTimestamp, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read submission %s: %w", requestID, err)
	}
	sub.Status = Status(status)
	if chainID != nil {
		v := uint64(*chainID)
		sub.ChainID = &v
	}
	return &sub, nil
}

var _ Store = (*PostgresStore)(nil)
