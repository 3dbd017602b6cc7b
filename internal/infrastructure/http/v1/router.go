// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/domain/allocation"
	"stockflow/internal/domain/auth"
	"stockflow/internal/domain/reports"
	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/http/v1/middleware"
	"stockflow/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Allocation is the orchestrator behind every mutating endpoint
	Allocation *allocation.Service

	// Reports serves the read-only projections
	Reports *reports.Service

	// Logger for request logging
	Logger *logger.Logger

	// TokenValidator enables bearer auth on /api/v1 when set
	TokenValidator middleware.TokenValidator

	// Idempotency enables X-Idempotency-Key handling when set
	Idempotency middleware.IdempotencyStore

	// HealthChecks are probed by /health/ready
	HealthChecks map[string]handlers.Pinger

	// HealthInfo adds storage details to /health/info
	HealthInfo func() any

	// Version is reported by /health/info
	Version string

	// Debug switches gin to debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks, cfg.HealthInfo)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	if cfg.TokenValidator != nil {
		v1.Use(middleware.Auth(cfg.TokenValidator))
	} else {
		v1.Use(middleware.AnonymousOperator("anonymous"))
	}
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	baseHandler := handlers.NewBaseHandler()
	registerBatchRoutes(v1, baseHandler, cfg)
	registerAllocationRoutes(v1, baseHandler, cfg)
	registerReportRoutes(v1, baseHandler, cfg)

	return router
}

// writeGuard gates ledger mutations on the write role once tokens are
// checked. Without auth every caller may write.
func writeGuard(cfg RouterConfig) gin.HandlerFunc {
	if cfg.TokenValidator == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RequireRole(auth.RoleWrite)
}

// registerBatchRoutes registers goods receipt and batch lookup endpoints.
func registerBatchRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewBatchHandler(base, cfg.Allocation)
	write := writeGuard(cfg)

	batches := rg.Group("/batches")
	batches.POST("", write, handler.Create)
	batches.GET("", handler.ListAvailable)
	batches.GET("/:id", handler.Get)
	batches.DELETE("/:id", write, handler.Delete)
	batches.GET("/:id/channels", handler.Channels)
}

// registerAllocationRoutes registers selection, issue and undo endpoints.
func registerAllocationRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewAllocationHandler(base, cfg.Allocation)
	write := writeGuard(cfg)

	allocations := rg.Group("/allocations")
	allocations.POST("/analyze", handler.Analyze)
	allocations.POST("/issue", write, handler.Issue)

	rg.GET("/undo", handler.UndoStatus)
	rg.POST("/undo", write, handler.Undo)
}

// registerReportRoutes registers report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.Reports == nil {
		return
	}
	handler := handlers.NewReportsHandler(base, cfg.Reports)

	reportsGroup := rg.Group("/reports")
	reportsGroup.GET("/low-stock", handler.LowStock)
	reportsGroup.GET("/expiring", handler.Expiring)
}
