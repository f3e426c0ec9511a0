package http

import (
	"encoding/json"
	"net/http"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
)

type RegisterHandler struct {
	Auth *service.AuthService
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ServeHTTP creates a new account.
//
//	@Summary		Register a new user
//	@Description	Creates an account with the default user role. Usernames are case-insensitive.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		registerRequest		true	"Desired username and password"
//	@Success		201		{object}	registerResponse	"The created account"
//	@Failure		400		{object}	httpx.ErrorBody		"Invalid username or weak password"
//	@Failure		409		{object}	httpx.ErrorBody		"Username already taken"
//	@Router			/v1/auth/register [post].
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON.")
		return
	}

	user, err := h.Auth.CreateAccount(r.Context(), req.Username, req.Password, domain.RoleUser)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role.String(),
	})
}
