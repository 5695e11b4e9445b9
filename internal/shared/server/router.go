package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "docfill-backend/internal/auth"
	"docfill-backend/internal/documents"
	"docfill-backend/internal/services/health"
	"docfill-backend/internal/shared/config"
	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/server/middleware"
	"docfill-backend/internal/shared/server/respond"
	"docfill-backend/internal/users"
)

const apiPrefix = "/api/v1"

// Default request budgets per principal.
var rateLimitRules = map[string]middleware.RateLimitRule{
	middleware.RateLimitDefault: {Rate: 5, Burst: 20},
	middleware.RateLimitPolling: {Rate: 10, Burst: 40},
}

// RouterDeps holds handlers required to build the router.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	DocumentHandler *documents.Handler
	UserHandler     *users.Handler
	GoogleAuth      *googleauth.GoogleService
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		metrics.Middleware(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rateLimitRules,
			GroupFor: middleware.PollingGroup(apiPrefix + "/documents/:id"),
			Limiter:  deps.RateLimiter,
		}),
	)

	healthHandler := func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	}
	r.GET("/health", healthHandler)
	r.GET("/metrics", metrics.Handler())

	public := r.Group(apiPrefix)
	public.GET("/health", healthHandler)

	authed := r.Group(apiPrefix)
	authed.Use(middleware.Auth())

	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(public)
	}
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(public, authed)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(authed)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
