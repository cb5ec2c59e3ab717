package benchmark

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/server2"
)

// PostgresBenchmarkSink appends one row per completed installation to a
// batch_metrics table, modeled on internal/transparency/service.go's
// append-only transparency_epochs table usage.
type PostgresBenchmarkSink struct {
	db     *sql.DB
	params params.Params
}

// NewPostgresBenchmarkSink wraps an existing *sql.DB. Callers are
// responsible for having created the batch_metrics table (see
// EnsureSchema).
func NewPostgresBenchmarkSink(db *sql.DB, p params.Params) *PostgresBenchmarkSink {
	return &PostgresBenchmarkSink{db: db, params: p}
}

// EnsureSchema creates the batch_metrics table if it does not already
// exist.
func (s *PostgresBenchmarkSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS batch_metrics (
			id SERIAL PRIMARY KEY,
			epoch BIGINT NOT NULL,
			tree_name TEXT NOT NULL,
			bucket_count INTEGER NOT NULL,
			byte_count INTEGER NOT NULL,
			params_key TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("benchmark: ensure schema: %w", err)
	}
	return nil
}

// RecordInstall implements server2.BenchmarkSink.
func (s *PostgresBenchmarkSink) RecordInstall(ctx context.Context, rec server2.InstallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_metrics (epoch, tree_name, bucket_count, byte_count, params_key)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Epoch, rec.Tree, rec.BucketCount, rec.ByteCount, paramsKey(s.params))
	if err != nil {
		log.Printf("[Benchmark] failed to record epoch %d (%s): %v", rec.Epoch, rec.Tree, err)
		return fmt.Errorf("benchmark: insert batch_metrics: %w", err)
	}
	return nil
}
