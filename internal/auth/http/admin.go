package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/pkg/httpx"
)

type AdminEventsHandler struct {
	Audit *service.Auditor
}

type securityEventResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ServeHTTP lists security events, newest first.
//
//	@Summary		List security events
//	@Description	Returns the audit trail, optionally filtered by subject, type, severity and age.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			subject		query		string	false	"Filter by subject (user id or submitted username)"
//	@Param			type		query		string	false	"Filter by event type"
//	@Param			severity	query		string	false	"Filter by severity"
//	@Param			since		query		string	false	"RFC3339 lower bound on created_at"
//	@Param			limit		query		int		false	"Maximum rows, default 100"
//	@Success		200			{array}		securityEventResponse
//	@Failure		403			{object}	httpx.ErrorBody	"Caller lacks admin:read"
//	@Router			/v1/admin/events [get].
func (h *AdminEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{
		Subject:  q.Get("subject"),
		Type:     domain.EventType(q.Get("type")),
		Severity: domain.Severity(q.Get("severity")),
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "since must be RFC3339.")
			return
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer.")
			return
		}
		filter.Limit = limit
	}

	events, err := h.Audit.Events(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]securityEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, securityEventResponse{
			ID:        ev.ID,
			Type:      string(ev.Type),
			Subject:   ev.Subject,
			Severity:  string(ev.Severity),
			Details:   ev.Details,
			CreatedAt: ev.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type AdminUserHandler struct {
	Admin *service.UserAdminService
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// HandleSetRole changes a user's role.
//
//	@Summary		Set user role
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string			true	"User id"
//	@Param			request	body	setRoleRequest	true	"New role"
//	@Success		204		"Role updated"
//	@Failure		400		{object}	httpx.ErrorBody	"Unknown role"
//	@Failure		404		{object}	httpx.ErrorBody	"No such user"
//	@Router			/v1/admin/users/{id}/role [put].
func (h *AdminUserHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON.")
		return
	}

	if err := h.Admin.SetRole(r.Context(), r.PathValue("id"), domain.Role(req.Role)); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivate disables an account.
//
//	@Summary		Deactivate user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path	string	true	"User id"
//	@Success		204	"Account deactivated"
//	@Failure		404	{object}	httpx.ErrorBody	"No such user"
//	@Router			/v1/admin/users/{id}/deactivate [post].
func (h *AdminUserHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReactivate re-enables a deactivated account.
//
//	@Summary		Reactivate user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path	string	true	"User id"
//	@Success		204	"Account reactivated"
//	@Failure		404	{object}	httpx.ErrorBody	"No such user"
//	@Router			/v1/admin/users/{id}/reactivate [post].
func (h *AdminUserHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Reactivate(r.Context(), r.PathValue("id")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock clears an active lockout.
//
//	@Summary		Unlock user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path	string	true	"User id"
//	@Success		204	"Lock cleared"
//	@Failure		404	{object}	httpx.ErrorBody	"No such user"
//	@Router			/v1/admin/users/{id}/unlock [post].
func (h *AdminUserHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.Unlock(r.Context(), r.PathValue("id")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAdminError is writeServiceError plus a 404 mapping: on the admin
// surface, naming a missing user is fine.
func writeAdminError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrUserNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "user_not_found", "No such user.")
		return
	}
	writeServiceError(w, err)
}
