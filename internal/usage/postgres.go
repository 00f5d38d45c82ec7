package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresRecorder struct {
	db Execer
}

func NewPostgresRecorder(db Execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO transcription_jobs (id, request_id, filename, outcome, graded, stt_provider, stt_model,
		 grader_provider, grader_model, grader_tokens, cost_usd, latency_ms, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.RequestID, e.Filename, e.Outcome, e.Graded, e.STTProvider, e.STTModel,
		e.GraderProvider, e.GraderModel, e.GraderTokens, e.CostUSD, e.Latency.Milliseconds(), e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcription job: %w", err)
	}
	return nil
}
