package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/service"
)

type contextKeyAuth string

// IdentityKey is the context key for the authenticated identity.
const IdentityKey contextKeyAuth = "auth_identity"

// GuardOptions tune a single guarded route. The zero value enables both
// authentication paths with no tier floor.
type GuardOptions struct {
	// DisableAPIKeys rejects credential-based authentication on this route.
	DisableAPIKeys bool
	// DisableSessions rejects session-based authentication on this route.
	DisableSessions bool
	// MinTier requires the principal's privilege tier to be at least this
	// value, independent of the permission catalog. Applies to both paths.
	MinTier int
	// Predicate, when set, replaces the permission-set evaluation.
	Predicate service.Predicate
}

// Guard is the single entry point every protected endpoint goes through.
// It authenticates the request (API key if the bearer value carries the key
// format tag, session otherwise), rate-limits credentials, evaluates the
// required resource:action, and records usage for key-authenticated calls
// after the wrapped handler completes.
func Guard(authSvc *service.AuthService, resource, action string, opts *GuardOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &GuardOptions{}
	}
	required := resource + ":" + action

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)

			if token != "" && service.IsAPIKeyFormat(token) {
				if opts.DisableAPIKeys {
					writeGuardError(w, http.StatusUnauthorized, "API key authentication is not accepted here", nil)
					return
				}
				guardAPIKey(authSvc, resource, action, required, opts, next, w, r, token)
				return
			}

			// Session path. Credential-specific steps (rate limiting, usage
			// logging) are skipped.
			if opts.DisableSessions || token == "" {
				writeGuardError(w, http.StatusUnauthorized, "Authentication required", nil)
				return
			}

			principal, err := authSvc.ResolveSession(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrInvalidCredentials) {
					writeGuardError(w, http.StatusInternalServerError, "Authentication error", nil)
					return
				}
				writeGuardError(w, http.StatusUnauthorized, "Authentication required", nil)
				return
			}

			id := &service.Identity{Type: service.AuthTypeSession, Principal: principal}
			if principal.Tier < opts.MinTier {
				writeGuardError(w, http.StatusForbidden, "Insufficient privilege tier", nil)
				return
			}
			if !authSvc.Authorize(r.Context(), id, resource, action, opts.Predicate) {
				writeGuardError(w, http.StatusForbidden, "Missing required permission", map[string]interface{}{
					"required": required,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

func guardAPIKey(authSvc *service.AuthService, resource, action, required string, opts *GuardOptions, next http.Handler, w http.ResponseWriter, r *http.Request, token string) {
	id, err := authSvc.ValidateAPIKey(r.Context(), token)
	if err != nil {
		// The internal reason (revoked vs expired vs unknown vs inactive
		// owner) stays in the logs; the response is deliberately uniform so
		// bad keys cannot be used as a probing oracle.
		slogFromContext(r.Context()).Warn("api key rejected",
			"reason", err.Error(), "request_id", GetRequestID(r.Context()))
		writeGuardError(w, http.StatusUnauthorized, "Invalid API key", nil)
		return
	}

	status := authSvc.CheckRateLimit(r.Context(), id.Key.ID, id.Key.RateLimit)
	if !status.Allowed {
		writeGuardError(w, http.StatusTooManyRequests, "Rate limit exceeded", map[string]interface{}{
			"current_usage": status.CurrentUsage,
			"limit":         status.Limit,
			"reset_time":    status.ResetTime.UTC().Format(time.RFC3339),
		})
		return
	}

	if id.Principal.Tier < opts.MinTier {
		writeGuardError(w, http.StatusForbidden, "Insufficient privilege tier", nil)
		return
	}
	if !authSvc.Authorize(r.Context(), id, resource, action, opts.Predicate) {
		writeGuardError(w, http.StatusForbidden, "Missing required permission", map[string]interface{}{
			"required": required,
		})
		return
	}

	start := time.Now()
	ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(ww, r.WithContext(withIdentity(r.Context(), id)))

	rec := &model.UsageRecord{
		APIKeyID:     id.Key.ID,
		Endpoint:     r.URL.Path,
		Method:       r.Method,
		StatusCode:   ww.status,
		LatencyMs:    float64(time.Since(start).Microseconds()) / 1000.0,
		RequestSize:  r.ContentLength,
		ResponseSize: int64(ww.bytes),
	}
	if ww.status >= 400 {
		rec.ErrorText = http.StatusText(ww.status)
	}
	authSvc.RecordUsage(r.Context(), rec)
}

// GetIdentity extracts the authenticated identity from the context. Returns
// nil for unauthenticated requests.
func GetIdentity(ctx context.Context) *service.Identity {
	if id, ok := ctx.Value(IdentityKey).(*service.Identity); ok {
		return id
	}
	return nil
}

func withIdentity(ctx context.Context, id *service.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeGuardError(w http.ResponseWriter, status int, message string, ctx map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
			Context: ctx,
		},
	})
}
