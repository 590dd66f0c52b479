package model

import "time"

// UsageRecord is one logged request made with an API key. Records are
// append-only: they are created once per authorized attempt and never
// updated. The per-key counters on APIKey are caches over this log.
type UsageRecord struct {
	ID           int64     `json:"id" db:"id"`
	APIKeyID     int64     `json:"api_key_id" db:"api_key_id"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	Method       string    `json:"method" db:"method"`
	StatusCode   int       `json:"status_code" db:"status_code"`
	LatencyMs    float64   `json:"latency_ms" db:"latency_ms"`
	ErrorText    string    `json:"error_text,omitempty" db:"error_text"`
	RequestSize  int64     `json:"request_size" db:"request_size"`
	ResponseSize int64     `json:"response_size" db:"response_size"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// UsageStats summarizes a key's activity for the management API.
type UsageStats struct {
	TotalRequests   int64         `json:"total_requests"`
	MonthlyRequests int64         `json:"monthly_requests"`
	HourlyUsage     int64         `json:"hourly_usage"`
	HourlyLimit     int           `json:"hourly_limit"`
	LastUsedAt      *time.Time    `json:"last_used_at,omitempty"`
	Recent          []UsageRecord `json:"recent"`
}
