package store

import (
	"fmt"
	"strings"
)

// pk returns the auto-incrementing primary key clause for the active driver.
func (s *Store) pk() string {
	switch s.driver {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "BIGINT PRIMARY KEY AUTO_INCREMENT"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *Store) migrate() error {
	pk := s.pk()

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS principals (
			id %s,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			tier INTEGER NOT NULL DEFAULT 0,
			last_login_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roles (
			id %s,
			name VARCHAR(255) UNIQUE NOT NULL,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS role_permissions (
			id %s,
			role_id BIGINT NOT NULL,
			resource VARCHAR(255) NOT NULL,
			action VARCHAR(32) NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS principal_roles (
			id %s,
			principal_id BIGINT NOT NULL,
			role_id BIGINT NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_keys (
			id %s,
			principal_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			key_hash VARCHAR(255) NOT NULL,
			lookup_id VARCHAR(16) NOT NULL,
			key_prefix VARCHAR(32) NOT NULL,
			permissions_json TEXT NOT NULL,
			rate_limit INTEGER NOT NULL DEFAULT 1000,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMP NULL,
			total_requests BIGINT NOT NULL DEFAULT 0,
			monthly_requests BIGINT NOT NULL DEFAULT 0,
			last_used_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS usage_records (
			id %s,
			api_key_id BIGINT NOT NULL,
			endpoint VARCHAR(512) NOT NULL DEFAULT '',
			method VARCHAR(16) NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			error_text VARCHAR(1024) NOT NULL DEFAULT '',
			request_size BIGINT NOT NULL DEFAULT 0,
			response_size BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`, pk),

		`CREATE TABLE IF NOT EXISTS settings (
			setting_key VARCHAR(255) PRIMARY KEY,
			setting_value VARCHAR(1024) NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_lookup ON api_keys(lookup_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_key_time ON usage_records(api_key_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_role_permissions_role ON role_permissions(role_id)`,
		`CREATE INDEX IF NOT EXISTS idx_principal_roles_principal ON principal_roles(principal_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// MySQL has no CREATE INDEX IF NOT EXISTS; a duplicate index on
			// re-migration is a no-op for idempotency.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
