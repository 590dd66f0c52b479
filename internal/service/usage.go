package service

import (
	"context"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/store"
)

// usageWriteTimeout bounds the best-effort usage write so a slow store
// cannot hold up a response that has already been served.
const usageWriteTimeout = 2 * time.Second

// RecordUsage appends one usage record for a completed request. It is
// fire-and-forget: failures are logged and never propagated, and the write
// is detached from the request's cancellation so a client disconnect does
// not lose the record.
func (s *AuthService) RecordUsage(ctx context.Context, rec *model.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageWriteTimeout)
	defer cancel()

	if err := s.store.InsertUsageRecord(ctx, rec); err != nil {
		s.logger.Warn("usage record write failed", "api_key_id", rec.APIKeyID, "endpoint", rec.Endpoint, "error", err)
	}
}

// UsageStats summarizes a key's activity for its owner. The monthly counter
// is recomputed from the authoritative usage log on each read and written
// back as a cache.
func (s *AuthService) UsageStats(ctx context.Context, apiKeyID, principalID int64) (*model.UsageStats, error) {
	key, err := s.store.GetAPIKey(ctx, apiKeyID)
	if err != nil {
		return nil, err
	}
	if key.PrincipalID != principalID {
		return nil, store.ErrNotFound // scope to the owner without leaking existence
	}

	now := time.Now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	monthly, err := s.store.CountUsageSince(ctx, apiKeyID, firstOfMonth)
	if err != nil {
		return nil, err
	}
	if monthly != key.MonthlyRequests {
		if err := s.store.SetMonthlyRequests(ctx, apiKeyID, monthly); err != nil {
			s.logger.Warn("monthly counter write-back failed", "api_key_id", apiKeyID, "error", err)
		}
	}

	hourly, err := s.store.CountUsageSince(ctx, apiKeyID, now.Add(-rateWindow))
	if err != nil {
		return nil, err
	}

	recent, err := s.store.ListRecentUsage(ctx, apiKeyID, 20)
	if err != nil {
		return nil, err
	}

	return &model.UsageStats{
		TotalRequests:   key.TotalRequests,
		MonthlyRequests: monthly,
		HourlyUsage:     hourly,
		HourlyLimit:     key.RateLimit,
		LastUsedAt:      key.LastUsedAt,
		Recent:          recent,
	}, nil
}
