package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/pkg/httpx"
	"github.com/quickqr/qrbot/pkg/slogx"

	_ "github.com/quickqr/qrbot/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	registry kv.Store

	AuthService  *service.AuthService
	AdminService *service.UserAdminService
	Audit        *service.Auditor
}

func NewRouter(
	buildVersion string,
	st store.Store,
	registry kv.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		registry:     registry,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			QR Bot Trust Service API
//	@version		0.1.0
//	@description	Credential verification, session tokens and account protection for the QR
//	@description	code chat-bot platform. Session tokens are HS256-signed and revocable.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8080
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /v1/auth/register - strict per-IP limit on account creation
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{Auth: r.AuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/auth/login - strict per-IP limit; the per-account window
	// lives in the service layer
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{Auth: r.AuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /v1/auth/logout - token is both credential and argument, so no
	// authn middleware; the handler verifies it itself
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{Auth: r.AuthService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /v1/auth/me
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(&UserInfoHandler{Admin: r.AdminService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
			AuthnMiddleware(r.AuthService),
			RequirePermission(domain.PermProfile, r.Audit),
		),
	)

	// PUT /v1/auth/password
	r.Mux.Handle("PUT /v1/auth/password",
		httpx.Chain(&ChangePasswordHandler{Auth: r.AuthService},
			httpx.RateLimitByIP(httpx.StrictLimit),
			AuthnMiddleware(r.AuthService),
			RequirePermission(domain.PermProfile, r.Audit),
		),
	)
}

func (r *Router) registerAdmin() {
	events := &AdminEventsHandler{Audit: r.Audit}
	users := &AdminUserHandler{Admin: r.AdminService}

	r.Mux.Handle("GET /v1/admin/events",
		httpx.Chain(events,
			httpx.RateLimitByIP(httpx.ModerateLimit),
			AuthnMiddleware(r.AuthService),
			RequirePermission(domain.PermAdminRead, r.Audit),
		),
	)

	adminWrite := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h,
			httpx.RateLimitByIP(httpx.ModerateLimit),
			AuthnMiddleware(r.AuthService),
			RequirePermission(domain.PermAdminWrite, r.Audit),
		)
	}

	r.Mux.Handle("PUT /v1/admin/users/{id}/role", adminWrite(users.HandleSetRole))
	r.Mux.Handle("POST /v1/admin/users/{id}/deactivate", adminWrite(users.HandleDeactivate))
	r.Mux.Handle("POST /v1/admin/users/{id}/reactivate", adminWrite(users.HandleReactivate))
	r.Mux.Handle("POST /v1/admin/users/{id}/unlock", adminWrite(users.HandleUnlock))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.registry),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
