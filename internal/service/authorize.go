package service

import (
	"context"

	"github.com/hiredeck/gatehouse/internal/permission"
)

// Predicate is an endpoint-supplied authorization override. When non-nil it
// replaces the permission-set evaluation entirely.
type Predicate func(id *Identity) bool

// Authorize decides whether the identity may perform action on resource.
//
// Resolution order, first match wins:
//  1. Session principals at or above the super tier are allowed
//     unconditionally. The bypass never applies to API keys, even when the
//     key's owner holds that tier: a leaked key must never carry implicit
//     admin reach.
//  2. A non-nil predicate is evaluated and its verdict is final.
//  3. Otherwise the permission set decides: the key's explicit list for
//     API key auth, the union across assigned roles for sessions.
func (s *AuthService) Authorize(ctx context.Context, id *Identity, resource, action string, pred Predicate) bool {
	if id == nil || id.Principal == nil {
		return false
	}

	if id.Type == AuthTypeSession && id.Principal.Tier >= s.superTier(ctx) {
		return true
	}

	if pred != nil {
		return pred(id)
	}

	set, err := s.permissionSet(id)
	if err != nil {
		s.logger.Error("permission set build failed", "principal_id", id.Principal.ID, "error", err)
		return false
	}
	return set.Allows(resource, action)
}

func (s *AuthService) permissionSet(id *Identity) (permission.Set, error) {
	if id.Type == AuthTypeAPIKey && id.Key != nil {
		return permission.NewSet(id.Key.Permissions)
	}

	var all []string
	for _, role := range id.Principal.Roles {
		all = append(all, role.Permissions...)
	}
	return permission.NewSet(all)
}
