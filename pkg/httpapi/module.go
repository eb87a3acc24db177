package httpapi

import (
	"taskmarket-ledger/pkg/auth"
	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/health"
	"taskmarket-ledger/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewRouter),
	fx.Invoke(registerOperationalEndpoints),
)

// Router exposes the route groups services mount their handlers on.
type Router struct {
	// API is /v1, authenticated.
	API *gin.RouterGroup
	// Admin is /v1/admin, admin role only.
	Admin *gin.RouterGroup
	// Internal is /internal, for trusted collaborators holding an admin token.
	Internal *gin.RouterGroup
	// Webhooks is /webhooks, unauthenticated; handlers verify their own signatures.
	Webhooks *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Trace(cfg.AppName),
		middleware.Recovery(),
		middleware.Error(),
	)
	r.HandleMethodNotAllowed = true
	return r
}

func NewRouter(cfg *config.Config, r *gin.Engine) *Router {
	authn := auth.Authenticate(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	api := r.Group("/v1", authn)
	return &Router{
		API:      api,
		Admin:    api.Group("/admin", auth.RequireRole(auth.RoleAdmin)),
		Internal: r.Group("/internal", authn, auth.RequireRole(auth.RoleAdmin)),
		Webhooks: r.Group("/webhooks"),
	}
}

func registerOperationalEndpoints(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
