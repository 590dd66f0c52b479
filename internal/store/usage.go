package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
)

// InsertUsageRecord appends one immutable usage record. Records are never
// updated after creation.
func (s *Store) InsertUsageRecord(ctx context.Context, rec *model.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO usage_records
		(api_key_id, endpoint, method, status_code, latency_ms, error_text,
		 request_size, response_size, created_at)
		VALUES
		(:api_key_id, :endpoint, :method, :status_code, :latency_ms, :error_text,
		 :request_size, :response_size, :created_at)`

	id, err := s.insert(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	rec.ID = id
	return nil
}

// CountUsageSince returns the number of usage records for a key with
// timestamp at or after the cutoff. This is the sliding-window primitive
// behind the rate limiter and the monthly counter recomputation.
func (s *Store) CountUsageSince(ctx context.Context, apiKeyID int64, since time.Time) (int64, error) {
	var count int64
	q := s.db.Rebind("SELECT COUNT(*) FROM usage_records WHERE api_key_id = ? AND created_at >= ?")
	if err := s.db.GetContext(ctx, &count, q, apiKeyID, since.UTC()); err != nil {
		return 0, fmt.Errorf("count usage since: %w", err)
	}
	return count, nil
}

// ListRecentUsage returns the newest usage records for a key, up to limit.
func (s *Store) ListRecentUsage(ctx context.Context, apiKeyID int64, limit int) ([]model.UsageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []model.UsageRecord
	q := s.db.Rebind("SELECT * FROM usage_records WHERE api_key_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &records, q, apiKeyID, limit); err != nil {
		return nil, fmt.Errorf("list recent usage: %w", err)
	}
	return records, nil
}
