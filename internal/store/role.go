package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
)

// CreateRole inserts a new role. The ID, CreatedAt, and UpdatedAt fields are
// populated after a successful insert.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now

	const q = `INSERT INTO roles (name, description, is_active, created_at, updated_at)
		VALUES (:name, :description, :is_active, :created_at, :updated_at)`

	id, err := s.insert(ctx, q, role)
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	role.ID = id
	return nil
}

// GetRole returns a role by ID, including its permission list.
func (s *Store) GetRole(ctx context.Context, id int64) (*model.Role, error) {
	var role model.Role
	q := s.db.Rebind("SELECT * FROM roles WHERE id = ?")
	if err := s.db.GetContext(ctx, &role, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	perms, err := s.GetRolePermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// GetRoleByName returns a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	q := s.db.Rebind("SELECT * FROM roles WHERE name = ?")
	if err := s.db.GetContext(ctx, &role, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role by name: %w", err)
	}
	perms, err := s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// ListRoles returns all roles with their permission lists.
func (s *Store) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.SelectContext(ctx, &roles, "SELECT * FROM roles ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	for i := range roles {
		perms, err := s.GetRolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// SetRolePermissions replaces all permission rows for a role in one
// transaction. Each entry must already be validated as "resource:action".
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, perms []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := tx.Rebind("DELETE FROM role_permissions WHERE role_id = ?")
	if _, err := tx.ExecContext(ctx, q, roleID); err != nil {
		return fmt.Errorf("delete existing role permissions: %w", err)
	}

	insertQ := tx.Rebind("INSERT INTO role_permissions (role_id, resource, action) VALUES (?, ?, ?)")
	for _, p := range perms {
		resource, action, ok := strings.Cut(p, ":")
		if !ok {
			return fmt.Errorf("malformed permission %q", p)
		}
		if _, err := tx.ExecContext(ctx, insertQ, roleID, resource, action); err != nil {
			return fmt.Errorf("insert role permission: %w", err)
		}
	}

	return tx.Commit()
}

// GetRolePermissions returns the role's permissions in "resource:action"
// form, sorted for stable output.
func (s *Store) GetRolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	var rows []struct {
		Resource string `db:"resource"`
		Action   string `db:"action"`
	}
	q := s.db.Rebind("SELECT resource, action FROM role_permissions WHERE role_id = ? ORDER BY resource, action")
	if err := s.db.SelectContext(ctx, &rows, q, roleID); err != nil {
		return nil, fmt.Errorf("get role permissions: %w", err)
	}
	perms := make([]string, 0, len(rows))
	for _, r := range rows {
		perms = append(perms, r.Resource+":"+r.Action)
	}
	return perms, nil
}
