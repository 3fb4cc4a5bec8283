package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/handler"
	"github.com/liftlabs/liftapp-backend/internal/middleware"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Portal    *handler.PortalHandler
	AnswerKey *handler.AnswerKeyHandler
	Roster    *handler.RosterHandler
	Analytics *handler.AnalyticsHandler
	Media     *handler.MediaHandler
	Monitor   *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so every response carries metadata, then brotli.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Uploaded document images, immutable by construction (random names),
	// cached for a year.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/annotator/login", handlers.Auth.AnnotatorLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.GET("/annotator/me", middleware.RequireAnnotatorJWT(authService), handlers.Auth.GetAnnotatorProfile)
	}

	// ─── 2. Annotator Group (JWT) ──────────────────────────────────────
	annotatorAPI := router.Group("/api/v1/annotator")
	annotatorAPI.Use(middleware.RequireAnnotatorJWT(authService))
	{
		annotatorAPI.GET("/shell", handlers.Portal.GetShell)
		annotatorAPI.GET("/dashboard", handlers.Portal.GetDashboard)
		annotatorAPI.GET("/exams", handlers.Portal.GetCatalog)
		annotatorAPI.POST("/exams/:code/start", handlers.Portal.StartExam)
		annotatorAPI.GET("/session", handlers.Portal.GetExamState)
		annotatorAPI.PUT("/session/draft", handlers.Portal.SaveDraft)
		annotatorAPI.POST("/session/rows", handlers.Portal.AddRow)
		annotatorAPI.PATCH("/session/rows/:index", handlers.Portal.EditCell)
		annotatorAPI.DELETE("/session/rows/:index", handlers.Portal.DeleteRow)
		annotatorAPI.POST("/session/submit", handlers.Portal.Submit)
		annotatorAPI.POST("/session/close", handlers.Portal.CloseSession)
	}

	// ─── 3. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/media/upload", handlers.Media.UploadImage)

		adminAPI.GET("/answer-keys", handlers.AnswerKey.ListAnswerKeys)
		adminAPI.GET("/answer-keys/:image_id", handlers.AnswerKey.GetAnswerKey)
		adminAPI.PUT("/answer-keys", handlers.AnswerKey.SaveAnswerKey)
		adminAPI.DELETE("/answer-keys/:image_id", handlers.AnswerKey.DeleteAnswerKey)

		adminAPI.GET("/annotators", handlers.Roster.ListAnnotators)
		adminAPI.GET("/annotators/export", handlers.Roster.ExportAnnotatorsCSV)

		adminAPI.GET("/dashboard", handlers.Analytics.GetDashboard)
	}

	// ─── 4. WebSocket Group (Admin WS Auth via query token) ───────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireAdminWSAuth(authService))
	{
		wsGroup.GET("/admin/monitor", handlers.Monitor.MonitorStream)
	}

	return router
}
