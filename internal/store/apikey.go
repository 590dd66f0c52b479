package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
)

// apiKeyRow maps 1:1 to the api_keys table. The permissions_json column
// stores the JSON-encoded permission list, so the model's string slice
// needs this flat intermediate for sqlx scanning.
type apiKeyRow struct {
	ID              int64      `db:"id"`
	PrincipalID     int64      `db:"principal_id"`
	Name            string     `db:"name"`
	KeyHash         string     `db:"key_hash"`
	LookupID        string     `db:"lookup_id"`
	KeyPrefix       string     `db:"key_prefix"`
	PermissionsJSON string     `db:"permissions_json"`
	RateLimit       int        `db:"rate_limit"`
	IsActive        bool       `db:"is_active"`
	ExpiresAt       *time.Time `db:"expires_at"`
	TotalRequests   int64      `db:"total_requests"`
	MonthlyRequests int64      `db:"monthly_requests"`
	LastUsedAt      *time.Time `db:"last_used_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	permsJSON, err := json.Marshal(k.Permissions)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return apiKeyRow{
		ID:              k.ID,
		PrincipalID:     k.PrincipalID,
		Name:            k.Name,
		KeyHash:         k.KeyHash,
		LookupID:        k.LookupID,
		KeyPrefix:       k.KeyPrefix,
		PermissionsJSON: string(permsJSON),
		RateLimit:       k.RateLimit,
		IsActive:        k.IsActive,
		ExpiresAt:       k.ExpiresAt,
		TotalRequests:   k.TotalRequests,
		MonthlyRequests: k.MonthlyRequests,
		LastUsedAt:      k.LastUsedAt,
		CreatedAt:       k.CreatedAt,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	var perms []string
	if r.PermissionsJSON != "" && r.PermissionsJSON != "null" {
		if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
			return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	if perms == nil {
		perms = []string{}
	}
	return model.APIKey{
		ID:              r.ID,
		PrincipalID:     r.PrincipalID,
		Name:            r.Name,
		KeyHash:         r.KeyHash,
		LookupID:        r.LookupID,
		KeyPrefix:       r.KeyPrefix,
		Permissions:     perms,
		RateLimit:       r.RateLimit,
		IsActive:        r.IsActive,
		ExpiresAt:       r.ExpiresAt,
		TotalRequests:   r.TotalRequests,
		MonthlyRequests: r.MonthlyRequests,
		LastUsedAt:      r.LastUsedAt,
		CreatedAt:       r.CreatedAt,
	}, nil
}

// CreateAPIKey inserts a new API key record. The key_hash and lookup_id must
// already be set by the issuer. The ID and CreatedAt fields are populated
// after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(principal_id, name, key_hash, lookup_id, key_prefix, permissions_json,
		 rate_limit, is_active, expires_at, total_requests, monthly_requests, created_at)
		VALUES
		(:principal_id, :name, :key_hash, :lookup_id, :key_prefix, :permissions_json,
		 :rate_limit, :is_active, :expires_at, :total_requests, :monthly_requests, :created_at)`

	id, err := s.insert(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey returns a key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var row apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetAPIKeysByLookupID returns keys whose embedded lookup ID matches. The
// lookup ID is non-secret and indexed, narrowing the verifier comparison to
// (normally) a single candidate before any bcrypt work.
func (s *Store) GetAPIKeysByLookupID(ctx context.Context, lookupID string) ([]model.APIKey, error) {
	var rows []apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE lookup_id = ?")
	if err := s.db.SelectContext(ctx, &rows, q, lookupID); err != nil {
		return nil, fmt.Errorf("get api keys by lookup id: %w", err)
	}
	return rowsToModels(rows)
}

// ListActiveAPIKeys returns every active key. This backs the validator's
// fallback linear scan; the verifier is one-way so there is no hash index
// to consult.
func (s *Store) ListActiveAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM api_keys WHERE is_active = TRUE ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list active api keys: %w", err)
	}
	return rowsToModels(rows)
}

// ListAPIKeysByPrincipal returns all keys owned by a principal, newest first.
func (s *Store) ListAPIKeysByPrincipal(ctx context.Context, principalID int64) ([]model.APIKey, error) {
	var rows []apiKeyRow
	q := s.db.Rebind("SELECT * FROM api_keys WHERE principal_id = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &rows, q, principalID); err != nil {
		return nil, fmt.Errorf("list api keys by principal: %w", err)
	}
	return rowsToModels(rows)
}

func rowsToModels(rows []apiKeyRow) ([]model.APIKey, error) {
	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// CountActiveAPIKeys returns the number of active keys a principal holds.
// Used for the per-principal ceiling check; see the race note on the issuer.
func (s *Store) CountActiveAPIKeys(ctx context.Context, principalID int64) (int, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM api_keys WHERE principal_id = ? AND is_active = TRUE")
	if err := s.db.GetContext(ctx, &count, q, principalID); err != nil {
		return 0, fmt.Errorf("count active api keys: %w", err)
	}
	return count, nil
}

// RevokeAPIKey soft-revokes a key (is_active = false), scoped to the owning
// principal so one owner cannot revoke another's key.
func (s *Store) RevokeAPIKey(ctx context.Context, id, principalID int64) error {
	q := s.db.Rebind("UPDATE api_keys SET is_active = FALSE WHERE id = ? AND principal_id = ?")
	result, err := s.db.ExecContext(ctx, q, id, principalID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return affected(result, "revoke api key")
}

// DeleteAPIKey removes a key permanently, scoped to the owning principal.
// Usage records for the key are retained.
func (s *Store) DeleteAPIKey(ctx context.Context, id, principalID int64) error {
	q := s.db.Rebind("DELETE FROM api_keys WHERE id = ? AND principal_id = ?")
	result, err := s.db.ExecContext(ctx, q, id, principalID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return affected(result, "delete api key")
}

// TouchAPIKey records a successful validation: bumps last_used_at and the
// cumulative request counter in one statement.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	q := s.db.Rebind(`UPDATE api_keys
		SET last_used_at = ?, total_requests = total_requests + 1
		WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return affected(result, "touch api key")
}

// SetMonthlyRequests writes back the recomputed monthly counter cache.
func (s *Store) SetMonthlyRequests(ctx context.Context, id, count int64) error {
	q := s.db.Rebind("UPDATE api_keys SET monthly_requests = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, count, id)
	if err != nil {
		return fmt.Errorf("set monthly requests: %w", err)
	}
	return affected(result, "set monthly requests")
}
