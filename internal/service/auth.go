// Package service implements Gatehouse's access-control core: session
// authentication, API key issuance and validation, permission evaluation,
// rate limiting, and usage recording.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hiredeck/gatehouse/internal/config"
	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/store"
)

// Settings keys read through the config cache. Values in the settings table
// override the static defaults at runtime.
const (
	settingMaxActiveKeys    = "keys.max_active"
	settingDefaultRateLimit = "keys.default_rate_limit"
	settingSuperTier        = "auth.super_tier"
)

// Defaults holds the static fallbacks for cache-backed settings.
type Defaults struct {
	MaxActiveKeys    int
	DefaultRateLimit int
	SuperTier        int
}

// AuthType identifies how a request was authenticated.
type AuthType string

const (
	AuthTypeSession AuthType = "session"
	AuthTypeAPIKey  AuthType = "api_key"
)

// Identity is the resolved principal behind a request. For API key auth the
// Key field carries the credential whose explicit permission list governs
// authorization; for sessions it is nil and role membership governs.
type Identity struct {
	Type      AuthType
	Principal *model.Principal
	Key       *model.APIKey
}

// AuthService is the orchestration point for all access-control decisions.
type AuthService struct {
	store     *store.Store
	settings  *config.Cache
	jwtSecret []byte
	defaults  Defaults
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. The settings cache is injected so
// tests can run isolated instances with their own TTLs.
func NewAuthService(st *store.Store, settings *config.Cache, jwtSecret string, defaults Defaults, logger *slog.Logger) *AuthService {
	if defaults.MaxActiveKeys <= 0 {
		defaults.MaxActiveKeys = 5
	}
	if defaults.DefaultRateLimit <= 0 {
		defaults.DefaultRateLimit = 1000
	}
	if defaults.SuperTier <= 0 {
		defaults.SuperTier = model.TierSuperAdmin
	}
	return &AuthService{
		store:     st,
		settings:  settings,
		jwtSecret: []byte(jwtSecret),
		defaults:  defaults,
		logger:    logger,
	}
}

// Store exposes the backing store for handlers that need direct reads.
func (s *AuthService) Store() *store.Store {
	return s.store
}

// ---------------------------------------------------------------------------
// Session authentication
// ---------------------------------------------------------------------------

type sessionClaims struct {
	PrincipalID int64  `json:"principal_id"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// Login verifies a principal's password and issues a signed session token.
func (s *AuthService) Login(ctx context.Context, email, password string, ttl time.Duration) (string, *model.Principal, error) {
	p, err := s.store.GetPrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !p.IsActive {
		return "", nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	claims := sessionClaims{
		PrincipalID: p.ID,
		Email:       p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "gatehouse",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	if err := s.store.UpdatePrincipalLastLogin(ctx, p.ID); err != nil {
		s.logger.Warn("update last login failed", "principal_id", p.ID, "error", err)
	}
	return token, p, nil
}

// ResolveSession verifies a session token and loads the current principal
// with roles. The principal is re-read on every call so a deactivation takes
// effect immediately, not at token expiry.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*model.Principal, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredentials
	}

	p, err := s.store.GetPrincipal(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// HashPassword derives a bcrypt hash for principal passwords.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ---------------------------------------------------------------------------
// Cache-backed policy reads
// ---------------------------------------------------------------------------

func (s *AuthService) maxActiveKeys(ctx context.Context) int {
	return s.settings.GetInt(ctx, settingMaxActiveKeys, s.defaults.MaxActiveKeys)
}

func (s *AuthService) defaultRateLimit(ctx context.Context) int {
	return s.settings.GetInt(ctx, settingDefaultRateLimit, s.defaults.DefaultRateLimit)
}

func (s *AuthService) superTier(ctx context.Context) int {
	return s.settings.GetInt(ctx, settingSuperTier, s.defaults.SuperTier)
}
