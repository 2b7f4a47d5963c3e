package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// QueryLogRepository persists one audit row per answered query.
type QueryLogRepository struct {
	db *sql.DB
}

var _ ports.QueryLogStore = (*QueryLogRepository)(nil)

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS retrieval_queries (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	intent TEXT NOT NULL,
	mode TEXT NOT NULL,
	detected_schemes JSONB NOT NULL DEFAULT '[]'::jsonb,
	doc_count INTEGER NOT NULL DEFAULT 0,
	reflection_count INTEGER NOT NULL DEFAULT 0,
	correction_count INTEGER NOT NULL DEFAULT 0,
	degraded_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_queries_created_at ON retrieval_queries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_retrieval_queries_intent ON retrieval_queries(intent);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) Insert(ctx context.Context, record domain.QueryRecord) error {
	schemes := record.DetectedSchemes
	if schemes == nil {
		schemes = []string{}
	}
	schemesJSON, err := json.Marshal(schemes)
	if err != nil {
		return fmt.Errorf("marshal detected schemes: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO retrieval_queries (
	id, query, intent, mode, detected_schemes, doc_count, reflection_count, correction_count, degraded_reason, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		record.ID, record.Query, string(record.Intent), string(record.Mode), schemesJSON,
		record.DocCount, record.ReflectionCount, record.CorrectionCount, record.DegradedReason, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}
