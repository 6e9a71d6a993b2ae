package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/handler"
	"github.com/sessionguard/platform/internal/service"
)

// UserAdminHandler serves user provisioning and the per-user audit views.
type UserAdminHandler struct {
	admin *service.AdminService
}

// NewUserAdminHandler creates a new UserAdminHandler.
func NewUserAdminHandler(admin *service.AdminService) *UserAdminHandler {
	return &UserAdminHandler{admin: admin}
}

// CreateUser handles POST /admin/users.
func (h *UserAdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input service.CreateUserInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	profile, err := h.admin.CreateUser(r.Context(), input)
	if err != nil {
		handler.RespondError(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusCreated, profile)
}

// GetUser handles GET /admin/users/{id}.
func (h *UserAdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	profile, err := h.admin.GetProfile(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, profile)
}

// ListAnomalies handles GET /admin/users/{id}/anomalies?limit=N.
func (h *UserAdminHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	entries, err := h.admin.ListAnomalies(r.Context(), userID, limitParam(r))
	if err != nil {
		handler.RespondError(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{"anomalies": entries})
}

// ListSessions handles GET /admin/users/{id}/sessions?limit=N.
func (h *UserAdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	sessions, err := h.admin.ListSessions(r.Context(), userID, limitParam(r))
	if err != nil {
		handler.RespondError(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, r, domain.ErrValidation("invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}

// limitParam returns 0 (the service default) when absent or malformed.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
