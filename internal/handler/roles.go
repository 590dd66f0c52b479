package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
)

// RolesHandler exposes the role catalog read-only. Roles are managed by the
// main application; this service only reports them.
type RolesHandler struct {
	authSvc *service.AuthService
}

// NewRolesHandler creates a RolesHandler.
func NewRolesHandler(authSvc *service.AuthService) *RolesHandler {
	return &RolesHandler{authSvc: authSvc}
}

// List returns all roles with their permission lists.
// GET /api/v1/roles
func (h *RolesHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.authSvc.Store().ListRoles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list roles")
		return
	}

	resources := make([]map[string]interface{}, 0, len(roles))
	for i := range roles {
		resources = append(resources, roleToMap(&roles[i]))
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resources,
		Meta:     &model.ResponseMeta{Count: len(resources)},
	})
}

// Get returns a single role by ID.
// GET /api/v1/roles/{roleId}
func (h *RolesHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "roleId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid role ID: "+idStr)
		return
	}

	role, err := h.authSvc.Store().GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Role not found: "+idStr)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get role")
		return
	}
	writeJSON(w, http.StatusOK, roleToMap(role))
}

func roleToMap(role *model.Role) map[string]interface{} {
	return map[string]interface{}{
		"id":          role.ID,
		"name":        role.Name,
		"description": role.Description,
		"is_active":   role.IsActive,
		"permissions": role.Permissions,
		"created_at":  role.CreatedAt,
		"updated_at":  role.UpdatedAt,
	}
}
