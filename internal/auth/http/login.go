package http

import (
	"encoding/json"
	"net/http"

	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
)

type LoginHandler struct {
	Auth *service.AuthService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// ServeHTTP authenticates a username/password pair and returns a session
// token.
//
//	@Summary		Log in
//	@Description	Verifies credentials and issues a bearer token. Unknown usernames and wrong
//	@Description	passwords produce the same response. Repeated failures lock the account.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		loginRequest	true	"Credentials"
//	@Success		200		{object}	loginResponse	"Bearer token and session metadata"
//	@Failure		401		{object}	httpx.ErrorBody	"Invalid credentials"
//	@Failure		423		{object}	httpx.ErrorBody	"Account temporarily locked"
//	@Failure		429		{object}	httpx.ErrorBody	"Rate limit exceeded"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON.")
		return
	}

	session, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresIn: int64(session.ExpiresIn.Seconds()),
		UserID:    session.UserID,
		Role:      session.Role.String(),
	})
}
