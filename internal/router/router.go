package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/handler"
	"github.com/stemsi/exstem-exam-engine/internal/middleware"
	"github.com/stemsi/exstem-exam-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting.
func SetupRouter(handlers *Handlers, cfg *config.Config, limiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request id first so the token middleware can forward it upstream.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Exam Session Group ─────────────────────────────────────────
	api := router.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	api.Use(middleware.ForwardBackendToken(cfg.BackendToken))
	{
		exams := api.Group("/exams/:exam_id")
		exams.POST("/session", handlers.Session.OpenSession)
		exams.GET("/session", handlers.Session.GetSession)
		exams.DELETE("/session", handlers.Session.CloseSession)
		exams.PUT("/session/answers/:question_id", handlers.Session.PutAnswer)
		exams.POST("/session/submit", handlers.Session.Submit)
		exams.POST("/session/retry", handlers.Session.Retry)
		exams.GET("/result", handlers.Session.GetResult)
	}

	// ─── 2. WebSocket Group (token via ?token=) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.ForwardBackendToken(cfg.BackendToken))
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	return router
}
