package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

type UserInfoHandler struct {
	Admin *service.UserAdminService
}

type userInfoResponse struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ServeHTTP returns the authenticated user's profile.
//
//	@Summary		Current user
//	@Description	Returns the account behind the presented bearer token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	userInfoResponse	"Account details"
//	@Failure		401	{object}	httpx.ErrorBody		"Invalid or missing token"
//	@Router			/v1/auth/me [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		writeBearerError(w, "missing bearer token")
		return
	}

	user, err := h.Admin.GetUser(ctx, identity.UserID)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to load user", "user_id", identity.UserID, "err", err)
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userInfoResponse{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role.String(),
		Active:      user.Active,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	})
}

type ChangePasswordHandler struct {
	Auth *service.AuthService
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ServeHTTP changes the caller's password after re-verifying the current
// one.
//
//	@Summary		Change password
//	@Description	Swaps the account password. The current password must be supplied again.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body	changePasswordRequest	true	"Current and new password"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	httpx.ErrorBody	"New password too weak"
//	@Failure		401		{object}	httpx.ErrorBody	"Current password wrong"
//	@Router			/v1/auth/password [put].
func (h *ChangePasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		writeBearerError(w, "missing bearer token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON.")
		return
	}

	if err := h.Auth.ChangePassword(ctx, identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
