package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/permission"
	"github.com/hiredeck/gatehouse/internal/store"
)

// Key format: hd_live_<8 hex lookup id>_<43 base64url chars>.
//
// The tag lets the guard reject non-key bearer values before any hashing
// work. The lookup id is not secret; it only narrows the verifier scan to
// (normally) one candidate. All 256 bits of entropy live in the tail, and
// the whole string stays under bcrypt's 72-byte input limit.
const (
	keyTag       = "hd_live_"
	lookupIDLen  = 8
	keySecretLen = 32 // bytes of entropy in the tail
)

// IsAPIKeyFormat reports whether a bearer value carries the API key format
// tag. The guard uses this to route between the credential and session
// authentication paths without any hashing work.
func IsAPIKeyFormat(s string) bool {
	return strings.HasPrefix(s, keyTag)
}

// IssueAPIKey creates a credential for the principal and returns the
// plaintext secret exactly once; only the bcrypt verifier is persisted.
func (s *AuthService) IssueAPIKey(ctx context.Context, principalID int64, name string, perms []string, rateLimit int, expiresAt *time.Time) (string, *model.APIKey, error) {
	if err := permission.ValidateAll(perms); err != nil {
		return "", nil, &ValidationError{Field: "permissions", Err: err}
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return "", nil, &ValidationError{Field: "expires_at", Err: errors.New("already in the past")}
	}
	if rateLimit <= 0 {
		rateLimit = s.defaultRateLimit(ctx)
	}

	owner, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return "", nil, fmt.Errorf("load key owner: %w", err)
	}
	if !owner.IsActive {
		return "", nil, ErrOwnerInactive
	}

	// Check-then-act: two concurrent creations can both pass this check and
	// briefly exceed the ceiling. Accepted soft bound; revocation converges.
	ceiling := s.maxActiveKeys(ctx)
	count, err := s.store.CountActiveAPIKeys(ctx, principalID)
	if err != nil {
		return "", nil, fmt.Errorf("count active keys: %w", err)
	}
	if count >= ceiling {
		return "", nil, fmt.Errorf("%w (%d active, ceiling %d)", ErrKeyCeiling, count, ceiling)
	}

	plaintext, lookupID, err := generateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	key := &model.APIKey{
		PrincipalID: principalID,
		Name:        name,
		KeyHash:     string(hash),
		LookupID:    lookupID,
		KeyPrefix:   keyTag + lookupID,
		Permissions: normalizePerms(perms),
		RateLimit:   rateLimit,
		IsActive:    true,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("save api key: %w", err)
	}
	return plaintext, key, nil
}

// ValidateAPIKey checks a presented secret against stored verifiers and
// resolves the owning principal. Any internal failure during the check makes
// the credential invalid; validation never fails open.
func (s *AuthService) ValidateAPIKey(ctx context.Context, presented string) (*Identity, error) {
	if !strings.HasPrefix(presented, keyTag) {
		return nil, ErrInvalidCredentials
	}

	candidates, err := s.loadCandidates(ctx, presented)
	if err != nil {
		s.logger.Error("api key candidate load failed", "error", err)
		return nil, ErrInvalidCredentials
	}

	var match *model.APIKey
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].KeyHash), []byte(presented)) == nil {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		return nil, ErrInvalidCredentials
	}

	if !match.IsActive {
		return nil, ErrKeyRevoked
	}
	if match.Expired(time.Now()) {
		return nil, ErrKeyExpired
	}

	owner, err := s.store.GetPrincipal(ctx, match.PrincipalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOwnerInactive
		}
		s.logger.Error("api key owner load failed", "api_key_id", match.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !owner.IsActive {
		return nil, ErrOwnerInactive
	}

	// Counter and timestamp updates must not fail the request.
	if err := s.store.TouchAPIKey(ctx, match.ID); err != nil {
		s.logger.Warn("api key touch failed", "api_key_id", match.ID, "error", err)
	}

	return &Identity{Type: AuthTypeAPIKey, Principal: owner, Key: match}, nil
}

// loadCandidates narrows the verifier scan using the non-secret lookup id
// embedded in the key. Keys presented without a parseable id fall back to
// the full linear scan over active keys; the verifier is one-way, so there
// is nothing better to index on.
func (s *AuthService) loadCandidates(ctx context.Context, presented string) ([]model.APIKey, error) {
	rest := presented[len(keyTag):]
	if len(rest) > lookupIDLen && rest[lookupIDLen] == '_' {
		return s.store.GetAPIKeysByLookupID(ctx, rest[:lookupIDLen])
	}
	return s.store.ListActiveAPIKeys(ctx)
}

func generateKey() (plaintext, lookupID string, err error) {
	idBytes := make([]byte, lookupIDLen/2)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", err
	}
	lookupID = hex.EncodeToString(idBytes)

	secret := make([]byte, keySecretLen)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}
	tail := base64.RawURLEncoding.EncodeToString(secret)

	return keyTag + lookupID + "_" + tail, lookupID, nil
}

func normalizePerms(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		parsed, err := permission.Parse(p)
		if err != nil {
			continue // already validated by the caller
		}
		out = append(out, parsed.String())
	}
	return out
}
