package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/handler"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Quiz      *handler.QuizHandler
	Attempt   *handler.AttemptHandler
	Analytics *handler.AnalyticsHandler
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

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/quizzes", handlers.Quiz.ListQuizzes)
		studentAPI.GET("/quizzes/:quiz_id", handlers.Quiz.GetQuiz)
		studentAPI.POST("/quizzes/:quiz_id/attempts", handlers.Attempt.StartAttempt)

		studentAPI.GET("/attempts/:attempt_id/questions", handlers.Attempt.ListQuestions)
		studentAPI.GET("/attempts/:attempt_id/questions/:question_id", handlers.Attempt.GetQuestion)
		studentAPI.PUT("/attempts/:attempt_id/questions/:question_id/answer", handlers.Attempt.SaveAnswer)
		studentAPI.GET("/attempts/:attempt_id/status", handlers.Attempt.GetStatus)
		studentAPI.POST("/attempts/:attempt_id/finalize", handlers.Attempt.Finalize)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.Attempt.Result)
	}

	// ─── 3. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(
		middleware.RequireTeacherJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		teacherAPI.GET("/quizzes/:quiz_id/analytics", handlers.Analytics.QuizAnalytics)
	}

	return router
}
