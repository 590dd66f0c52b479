package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hiredeck/gatehouse/internal/config"
	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

// ---------------------------------------------------------------------------
// Guard middleware tests
// ---------------------------------------------------------------------------

type guardEnv struct {
	auth  *service.AuthService
	store *store.Store
	owner *model.Principal
}

func newGuardEnv(t *testing.T) *guardEnv {
	t.Helper()
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.DiscardHandler)
	auth := service.NewAuthService(st, config.NewCache(st, 0), "guard-test-secret", service.Defaults{}, logger)

	hash, err := service.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	owner := &model.Principal{
		Email:        "dev@hiredeck.io",
		Name:         "Dev",
		PasswordHash: hash,
		IsActive:     true,
		Tier:         model.TierMember,
	}
	if err := st.CreatePrincipal(context.Background(), owner); err != nil {
		t.Fatalf("CreatePrincipal: %v", err)
	}

	return &guardEnv{auth: auth, store: st, owner: owner}
}

func (e *guardEnv) issueKey(t *testing.T, perms []string, rateLimit int) string {
	t.Helper()
	plaintext, _, err := e.auth.IssueAPIKey(context.Background(), e.owner.ID, "t", perms, rateLimit, nil)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}
	return plaintext
}

// okHandler records whether the inner handler ran and echoes the identity type.
func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		id := GetIdentity(r.Context())
		if id == nil {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(string(id.Type)))
	})
}

func doGuarded(t *testing.T, handler http.Handler, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1/applications", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %q)", err, rr.Body.String())
	}
	return resp
}

func TestGuardValidKey(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"applications:read"}, 0)

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	rr := doGuarded(t, handler, key)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %q)", rr.Code, rr.Body.String())
	}
	if !called {
		t.Error("inner handler never ran")
	}
	if rr.Body.String() != "api_key" {
		t.Errorf("identity type: got %q, want %q", rr.Body.String(), "api_key")
	}
}

func TestGuardRecordsUsage(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"applications:read"}, 0)

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))
	doGuarded(t, handler, key)

	keys, err := env.store.ListAPIKeysByPrincipal(context.Background(), env.owner.ID)
	if err != nil {
		t.Fatalf("ListAPIKeysByPrincipal: %v", err)
	}
	recent, err := env.store.ListRecentUsage(context.Background(), keys[0].ID, 10)
	if err != nil {
		t.Fatalf("ListRecentUsage: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d usage records, want 1", len(recent))
	}
	rec := recent[0]
	if rec.Endpoint != "/api/v1/applications" {
		t.Errorf("endpoint: got %q, want %q", rec.Endpoint, "/api/v1/applications")
	}
	if rec.Method != "GET" {
		t.Errorf("method: got %q, want %q", rec.Method, "GET")
	}
	if rec.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.StatusCode)
	}
}

func TestGuardInvalidKeyGeneric(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"applications:read"}, 0)
	// Revoke so the internal reason would be "revoked"; the response must
	// not say so.
	keys, _ := env.store.ListAPIKeysByPrincipal(context.Background(), env.owner.ID)
	if err := env.store.RevokeAPIKey(context.Background(), keys[0].ID, env.owner.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	for name, presented := range map[string]string{
		"revoked":    key,
		"fabricated": "hd_live_00000000_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
	} {
		t.Run(name, func(t *testing.T) {
			rr := doGuarded(t, handler, presented)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			resp := decodeError(t, rr)
			if resp.Error.Message != "Invalid API key" {
				t.Errorf("message: got %q, want the generic %q", resp.Error.Message, "Invalid API key")
			}
		})
	}
	if called {
		t.Error("inner handler must not run for rejected keys")
	}
}

func TestGuardMissingAuth(t *testing.T) {
	env := newGuardEnv(t)

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	rr := doGuarded(t, handler, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if called {
		t.Error("inner handler must not run without credentials")
	}
}

func TestGuardMissingPermission(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"jobs:read"}, 0)

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	rr := doGuarded(t, handler, key)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Context["required"] != "applications:read" {
		t.Errorf("context.required: got %v, want %q", resp.Error.Context["required"], "applications:read")
	}
	if called {
		t.Error("inner handler must not run without the permission")
	}
}

func TestGuardRateLimit(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"applications:read"}, 2)

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	// First two requests pass and each lands a usage record; the third is
	// over the trailing-hour budget.
	for i := 0; i < 2; i++ {
		rr := doGuarded(t, handler, key)
		if rr.Code != http.StatusOK {
			t.Fatalf("request #%d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := doGuarded(t, handler, key)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Context["limit"].(float64) != 2 {
		t.Errorf("context.limit: got %v, want 2", resp.Error.Context["limit"])
	}
	if resp.Error.Context["current_usage"].(float64) != 2 {
		t.Errorf("context.current_usage: got %v, want 2", resp.Error.Context["current_usage"])
	}
	if _, err := time.Parse(time.RFC3339, resp.Error.Context["reset_time"].(string)); err != nil {
		t.Errorf("context.reset_time not RFC3339: %v", err)
	}
}

func TestGuardSessionPath(t *testing.T) {
	env := newGuardEnv(t)
	ctx := context.Background()

	role := &model.Role{Name: "reader", IsActive: true}
	if err := env.store.CreateRole(ctx, role); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := env.store.SetRolePermissions(ctx, role.ID, []string{"applications:read"}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := env.store.AssignRole(ctx, env.owner.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	token, _, err := env.auth.Login(ctx, "dev@hiredeck.io", "correct-horse", time.Hour)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var called bool
	handler := Guard(env.auth, "applications", "read", nil)(okHandler(&called))

	rr := doGuarded(t, handler, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %q)", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "session" {
		t.Errorf("identity type: got %q, want %q", rr.Body.String(), "session")
	}

	// Sessions are not metered: no usage record lands.
	keys, _ := env.store.ListAPIKeysByPrincipal(ctx, env.owner.ID)
	if len(keys) != 0 {
		t.Fatalf("unexpected keys: %d", len(keys))
	}
}

func TestGuardDisabledPaths(t *testing.T) {
	env := newGuardEnv(t)
	ctx := context.Background()
	key := env.issueKey(t, []string{"applications:read"}, 0)

	role := &model.Role{Name: "reader", IsActive: true}
	if err := env.store.CreateRole(ctx, role); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := env.store.SetRolePermissions(ctx, role.ID, []string{"applications:read"}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if err := env.store.AssignRole(ctx, env.owner.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	token, _, err := env.auth.Login(ctx, "dev@hiredeck.io", "correct-horse", time.Hour)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var called bool
	keyOnly := Guard(env.auth, "applications", "read", &GuardOptions{DisableSessions: true})(okHandler(&called))
	sessionOnly := Guard(env.auth, "applications", "read", &GuardOptions{DisableAPIKeys: true})(okHandler(&called))

	if rr := doGuarded(t, keyOnly, token); rr.Code != http.StatusUnauthorized {
		t.Errorf("session on key-only route: expected 401, got %d", rr.Code)
	}
	if rr := doGuarded(t, sessionOnly, key); rr.Code != http.StatusUnauthorized {
		t.Errorf("key on session-only route: expected 401, got %d", rr.Code)
	}
	if rr := doGuarded(t, keyOnly, key); rr.Code != http.StatusOK {
		t.Errorf("key on key-only route: expected 200, got %d", rr.Code)
	}
	if rr := doGuarded(t, sessionOnly, token); rr.Code != http.StatusOK {
		t.Errorf("session on session-only route: expected 200, got %d", rr.Code)
	}
}

func TestGuardMinTier(t *testing.T) {
	env := newGuardEnv(t)
	key := env.issueKey(t, []string{"applications:read"}, 0)

	var called bool
	handler := Guard(env.auth, "applications", "read", &GuardOptions{MinTier: model.TierAdmin})(okHandler(&called))

	rr := doGuarded(t, handler, key)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for tier below floor, got %d", rr.Code)
	}
	if called {
		t.Error("inner handler must not run below the tier floor")
	}
}

func TestGuardPredicate(t *testing.T) {
	env := newGuardEnv(t)
	// Key has no catalog permissions at all; the predicate alone admits it.
	key := env.issueKey(t, []string{"jobs:read"}, 0)

	var called bool
	anyAuthenticated := func(id *service.Identity) bool { return id != nil && id.Principal != nil }
	handler := Guard(env.auth, "applications", "manage", &GuardOptions{Predicate: anyAuthenticated})(okHandler(&called))

	rr := doGuarded(t, handler, key)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via predicate, got %d", rr.Code)
	}
	if !called {
		t.Error("inner handler should run when the predicate admits")
	}
}

// ---------------------------------------------------------------------------
// GetIdentity tests
// ---------------------------------------------------------------------------

func TestGetIdentityEmptyContext(t *testing.T) {
	if id := GetIdentity(context.Background()); id != nil {
		t.Errorf("expected nil identity from bare context, got %+v", id)
	}
}

// ---------------------------------------------------------------------------
// Login rate limit tests
// ---------------------------------------------------------------------------

func TestLoginRateLimitZeroFallsBackToDefault(t *testing.T) {
	// A zero rate comes from a config file that never mentions the setting;
	// it must not reject the very first login attempt.
	var called bool
	handler := LoginRateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/v1/session", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rr.Code)
	}
	if !called {
		t.Error("inner handler should run under the fallback rate")
	}
}
