package handler

import (
	"net/http"

	"github.com/sessionguard/platform/internal/service"
)

// SessionHandler serves the login, heartbeat and logout endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// Login handles POST /auth/login.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input service.LoginInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}
	input.IPAddress = ClientIP(r)
	input.UserAgent = r.UserAgent()

	result, err := h.sessions.Login(r.Context(), input)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Heartbeat handles POST /auth/heartbeat.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondBadBody(w)
		return
	}

	result, err := h.sessions.Heartbeat(r.Context(), req.SessionID)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondBadBody(w)
		return
	}

	result, err := h.sessions.Logout(r.Context(), req.SessionID)
	if err != nil {
		RespondError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
