package http

import (
	"net/http"
	"strings"

	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
)

type LogoutHandler struct {
	Auth *service.AuthService
}

// ServeHTTP revokes the presented bearer token.
//
//	@Summary		Log out
//	@Description	Revokes the bearer token used to authenticate the request. Revoking an
//	@Description	already-revoked token succeeds.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		204	"Token revoked"
//	@Failure		401	{object}	httpx.ErrorBody	"Missing or unusable token"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		writeBearerError(w, "missing bearer token")
		return
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

	if err := h.Auth.Logout(r.Context(), raw); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
