package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docdash/internal/handler"
	"docdash/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
// metricsHandler may be nil.
func Setup(
	logger *zap.Logger,
	allowedOrigins []string,
	sessionH *handler.SessionHandler,
	healthH *handler.HealthHandler,
	metricsHandler http.Handler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1")

	sessions := v1.Group("/sessions")
	sessions.POST("", sessionH.Create)
	sessions.GET("/:id", sessionH.Get)
	sessions.DELETE("/:id", sessionH.Delete)
	sessions.POST("/:id/uploads", sessionH.Upload)
	sessions.POST("/:id/poll", sessionH.Poll)
	sessions.POST("/:id/retry", sessionH.Retry)
	sessions.GET("/:id/results", sessionH.Results)
	sessions.GET("/:id/export.csv", sessionH.ExportCSV)
	sessions.GET("/:id/export.xlsx", sessionH.ExportXLSX)

	return r
}
