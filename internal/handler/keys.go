package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/server/middleware"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
)

// KeysHandler manages the API key lifecycle for the authenticated owner.
// Every operation is scoped to the identity resolved by the route guard;
// one principal can never see or mutate another's keys.
type KeysHandler struct {
	authSvc *service.AuthService
}

// NewKeysHandler creates a KeysHandler.
func NewKeysHandler(authSvc *service.AuthService) *KeysHandler {
	return &KeysHandler{authSvc: authSvc}
}

// List returns the owner's keys. Secrets and verifiers are never returned,
// only the display prefix, metadata, and usage counters.
// GET /api/v1/keys
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())

	keys, err := h.authSvc.Store().ListAPIKeysByPrincipal(r.Context(), id.Principal.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// createKeyRequest is the expected payload for Create.
type createKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// createKeyResponse includes the plaintext secret, shown once only.
type createKeyResponse struct {
	ID          int64      `json:"id"`
	Key         string     `json:"api_key"` // plaintext, unrecoverable after this response
	KeyPrefix   string     `json:"key_prefix"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Create issues a new API key for the authenticated owner and returns the
// plaintext secret exactly once.
// POST /api/v1/keys
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())

	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Key name is required")
		return
	}
	if len(req.Permissions) == 0 {
		writeError(w, http.StatusBadRequest, "At least one permission is required")
		return
	}

	plaintext, key, err := h.authSvc.IssueAPIKey(r.Context(), id.Principal.ID, req.Name, req.Permissions, req.RateLimit, req.ExpiresAt)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.Is(err, service.ErrKeyCeiling):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Failed to create API key")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		ID:          key.ID,
		Key:         plaintext,
		KeyPrefix:   key.KeyPrefix,
		Name:        key.Name,
		Permissions: key.Permissions,
		RateLimit:   key.RateLimit,
		ExpiresAt:   key.ExpiresAt,
		CreatedAt:   key.CreatedAt,
	})
}

// Revoke soft-revokes a key (it stays listed, inactive).
// POST /api/v1/keys/{keyId}/revoke
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}

	if err := h.authSvc.Store().RevokeAPIKey(r.Context(), keyID, id.Principal.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key revoked",
	})
}

// Delete hard-deletes a key. Usage records are retained for audit.
// DELETE /api/v1/keys/{keyId}
func (h *KeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}

	if err := h.authSvc.Store().DeleteAPIKey(r.Context(), keyID, id.Principal.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "API key deleted",
	})
}

// Usage returns totals, recent activity, and current-hour usage versus the
// limit for one of the owner's keys.
// GET /api/v1/keys/{keyId}/usage
func (h *KeysHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	keyID, ok := keyIDParam(w, r)
	if !ok {
		return
	}

	stats, err := h.authSvc.UsageStats(r.Context(), keyID, id.Principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load usage statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func keyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "keyId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID: "+idStr)
		return 0, false
	}
	return id, true
}

func apiKeyToMap(key *model.APIKey) map[string]interface{} {
	m := map[string]interface{}{
		"id":               key.ID,
		"key_prefix":       key.KeyPrefix,
		"name":             key.Name,
		"permissions":      key.Permissions,
		"rate_limit":       key.RateLimit,
		"is_active":        key.IsActive,
		"total_requests":   key.TotalRequests,
		"monthly_requests": key.MonthlyRequests,
		"created_at":       key.CreatedAt,
	}
	if key.ExpiresAt != nil {
		m["expires_at"] = key.ExpiresAt
	}
	if key.LastUsedAt != nil {
		m["last_used_at"] = key.LastUsedAt
	}
	return m
}
