package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
)

// CreatePrincipal inserts a new principal. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert. Role assignments are not
// part of the insert; use AssignRole.
func (s *Store) CreatePrincipal(ctx context.Context, p *model.Principal) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	const q = `INSERT INTO principals
		(email, name, password_hash, is_active, tier, created_at, updated_at)
		VALUES
		(:email, :name, :password_hash, :is_active, :tier, :created_at, :updated_at)`

	id, err := s.insert(ctx, q, p)
	if err != nil {
		return fmt.Errorf("insert principal: %w", err)
	}
	p.ID = id
	return nil
}

// GetPrincipal returns a principal by ID with roles and role permissions
// populated.
func (s *Store) GetPrincipal(ctx context.Context, id int64) (*model.Principal, error) {
	var p model.Principal
	q := s.db.Rebind("SELECT * FROM principals WHERE id = ?")
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	roles, err := s.GetPrincipalRoles(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Roles = roles
	return &p, nil
}

// GetPrincipalByEmail returns a principal by email with roles populated.
func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*model.Principal, error) {
	var p model.Principal
	q := s.db.Rebind("SELECT * FROM principals WHERE email = ?")
	if err := s.db.GetContext(ctx, &p, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get principal by email: %w", err)
	}
	roles, err := s.GetPrincipalRoles(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Roles = roles
	return &p, nil
}

// ListPrincipals returns all principals ordered by email, without role
// expansion.
func (s *Store) ListPrincipals(ctx context.Context) ([]model.Principal, error) {
	var principals []model.Principal
	if err := s.db.SelectContext(ctx, &principals, "SELECT * FROM principals ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	return principals, nil
}

// SetPrincipalActive flips the active flag. Principals are deactivated,
// never hard-deleted.
func (s *Store) SetPrincipalActive(ctx context.Context, id int64, active bool) error {
	q := s.db.Rebind("UPDATE principals SET is_active = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set principal active: %w", err)
	}
	return affected(result, "set principal active")
}

// UpdatePrincipalLastLogin sets the last_login_at timestamp.
func (s *Store) UpdatePrincipalLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	q := s.db.Rebind("UPDATE principals SET last_login_at = ?, updated_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return fmt.Errorf("update principal last login: %w", err)
	}
	return affected(result, "update principal last login")
}

// AssignRole adds a role to a principal. Assigning an already-held role is
// a no-op.
func (s *Store) AssignRole(ctx context.Context, principalID, roleID int64) error {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM principal_roles WHERE principal_id = ? AND role_id = ?")
	if err := s.db.GetContext(ctx, &count, q, principalID, roleID); err != nil {
		return fmt.Errorf("check role assignment: %w", err)
	}
	if count > 0 {
		return nil
	}
	q = s.db.Rebind("INSERT INTO principal_roles (principal_id, role_id) VALUES (?, ?)")
	if _, err := s.db.ExecContext(ctx, q, principalID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// GetPrincipalRoles returns the active roles assigned to a principal, each
// with its permission list populated.
func (s *Store) GetPrincipalRoles(ctx context.Context, principalID int64) ([]model.Role, error) {
	var roles []model.Role
	q := s.db.Rebind(`SELECT r.* FROM roles r
		JOIN principal_roles pr ON pr.role_id = r.id
		WHERE pr.principal_id = ? AND r.is_active = TRUE
		ORDER BY r.name`)
	if err := s.db.SelectContext(ctx, &roles, q, principalID); err != nil {
		return nil, fmt.Errorf("get principal roles: %w", err)
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
