package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	q := s.db.Rebind("SELECT setting_value FROM settings WHERE setting_key = ?")
	if err := s.db.GetContext(ctx, &value, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting inserts or replaces a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	// Portable upsert: update first, insert on zero rows.
	q := s.db.Rebind("UPDATE settings SET setting_value = ? WHERE setting_key = ?")
	result, err := s.db.ExecContext(ctx, q, value, key)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	q = s.db.Rebind("INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)")
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return nil
}
