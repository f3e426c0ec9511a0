package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
)

// invalidCredentialsDescription is deliberately identical for unknown users
// and wrong passwords so responses cannot be used to probe which usernames
// exist.
const invalidCredentialsDescription = "Invalid username or password."

// writeServiceError translates service-layer errors into the uniform JSON
// error payload with the right status code.
func writeServiceError(w http.ResponseWriter, err error) {
	var locked *service.AccountLockedError
	var limited *service.RateLimitedError

	switch {
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrInvalidPassword):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", invalidCredentialsDescription)

	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(locked.RetryAfter)))
		httpx.WriteError(w, http.StatusLocked, "account_locked",
			"Too many failed attempts. The account is temporarily locked.")

	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limited.RetryAfter)))
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
			"Too many requests. Please try again later.")

	case errors.Is(err, service.ErrAccountDisabled):
		httpx.WriteError(w, http.StatusForbidden, "account_disabled", "The account is deactivated.")

	case errors.Is(err, service.ErrDuplicateUser):
		httpx.WriteError(w, http.StatusConflict, "duplicate_user", "The username is already taken.")

	case errors.Is(err, service.ErrWeakPassword):
		httpx.WriteError(w, http.StatusBadRequest, "weak_password", err.Error())

	case errors.Is(err, service.ErrInvalidUsername):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_username", err.Error())

	case errors.Is(err, service.ErrInvalidRole):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_role", "Unknown role.")

	case errors.Is(err, service.ErrTokenMalformed),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked):
		writeAuthorizeError(w, err)

	case errors.Is(err, service.ErrStoreUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable",
			"A backing store is unavailable. Please retry.")

	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error.")
	}
}

// writeAuthorizeError handles token-validation failures as RFC 6750 bearer
// errors.
func writeAuthorizeError(w http.ResponseWriter, err error) {
	desc := "token verification failed"
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		desc = "token expired"
	case errors.Is(err, service.ErrTokenRevoked):
		desc = "token revoked"
	case errors.Is(err, service.ErrAccountDisabled):
		httpx.WriteError(w, http.StatusForbidden, "account_disabled", "The account is deactivated.")
		return
	case errors.Is(err, service.ErrStoreUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "service_unavailable",
			"A backing store is unavailable. Please retry.")
		return
	}
	writeBearerError(w, desc)
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(d.Seconds()), 1)
}
