package service

import (
	"context"
	"time"
)

// rateWindow is the trailing duration over which a key's request budget is
// measured. The window is recomputed from the usage log on every check
// rather than kept as a running counter, which trades a cheap indexed count
// for the elimination of increment/decrement races.
const rateWindow = time.Hour

// RateLimitStatus is the result of one rate-limit check.
type RateLimitStatus struct {
	Allowed      bool      `json:"allowed"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        int       `json:"limit"`
	ResetTime    time.Time `json:"reset_time"`
}

// CheckRateLimit reports whether the key is within its trailing-hour budget.
// A counting failure logs a warning and allows the request: availability of
// the protected functionality wins over strictness here, unlike credential
// validation which never fails open.
//
// Concurrent in-flight requests can each pass the check before any of their
// usage records land, transiently exceeding the ceiling by the in-flight
// count. Accepted approximation.
func (s *AuthService) CheckRateLimit(ctx context.Context, apiKeyID int64, ceiling int) RateLimitStatus {
	now := time.Now()
	status := RateLimitStatus{
		Allowed:   true,
		Limit:     ceiling,
		ResetTime: now.Add(rateWindow),
	}
	if ceiling <= 0 {
		return status
	}

	count, err := s.store.CountUsageSince(ctx, apiKeyID, now.Add(-rateWindow))
	if err != nil {
		s.logger.Warn("rate limit count failed, allowing request", "api_key_id", apiKeyID, "error", err)
		return status
	}

	status.CurrentUsage = count
	status.Allowed = count < int64(ceiling)
	return status
}
