package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a Recorder backed by a Postgres table.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG wraps an existing connection pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// EnsureSchema creates the invalidation_records table if it is missing.
func (p *PG) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invalidation_records (
			id             UUID PRIMARY KEY,
			ts             TIMESTAMPTZ NOT NULL,
			actor_key_hash TEXT NOT NULL,
			criteria       JSONB NOT NULL,
			matched_count  INT NOT NULL,
			reason         TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit table: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS invalidation_records_ts_idx ON invalidation_records (ts)`)
	if err != nil {
		return fmt.Errorf("ensure audit index: %w", err)
	}
	return nil
}

func (p *PG) Append(ctx context.Context, rec Record) error {
	criteria, err := json.Marshal(rec.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO invalidation_records (id, ts, actor_key_hash, criteria, matched_count, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Timestamp, rec.ActorKeyHash, criteria, rec.MatchedCount, rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert invalidation record: %w", err)
	}
	return nil
}

func (p *PG) Recent(ctx context.Context, since time.Time) ([]Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, ts, actor_key_hash, criteria, matched_count, reason
		 FROM invalidation_records WHERE ts >= $1 ORDER BY ts DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query invalidation records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var criteria []byte
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ActorKeyHash, &criteria, &rec.MatchedCount, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan invalidation record: %w", err)
		}
		if err := json.Unmarshal(criteria, &rec.Criteria); err != nil {
			return nil, fmt.Errorf("unmarshal criteria: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invalidation records: %w", err)
	}
	return recs, nil
}

func (p *PG) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM invalidation_records WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge invalidation records: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Recorder = (*PG)(nil)
