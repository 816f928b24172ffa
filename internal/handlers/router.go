package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/classlight/quiz-service/internal/auth"
	"github.com/classlight/quiz-service/internal/services"
	"github.com/classlight/quiz-service/internal/utils"
)

type HandlerManager struct {
	quizHandler      *QuizHandler
	attemptHandler   *AttemptHandler
	analyticsHandler *AnalyticsHandler
}

func NewHandlerManager(
	quizService services.QuizService,
	attemptService services.AttemptService,
	analyticsService services.AnalyticsService,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		quizHandler:      NewQuizHandler(quizService, logger),
		attemptHandler:   NewAttemptHandler(attemptService, logger),
		analyticsHandler: NewAnalyticsHandler(analyticsService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, verifier auth.TokenVerifier) {
	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "quiz-service",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(auth.Middleware(verifier))
	{
		// Quiz routes
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", hm.quizHandler.CreateQuiz)
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.PUT("/:id", hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:id", hm.quizHandler.DeleteQuiz)
			quizzes.POST("/:id/publish", hm.quizHandler.PublishQuiz)
			quizzes.POST("/:id/unpublish", hm.quizHandler.UnpublishQuiz)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)

			// Quiz- and student-scoped listings
			attempts.GET("/quiz/:quiz_id", hm.attemptHandler.GetAttemptsByQuiz)
			attempts.GET("/student/:student_id", hm.attemptHandler.GetAttemptsByStudent)
		}

		// Analytics routes
		analytics := v1.Group("/analytics")
		{
			analytics.GET("/quizzes/:quiz_id", hm.analyticsHandler.GetQuizAnalytics)
			analytics.GET("/quizzes/:quiz_id/export", hm.analyticsHandler.ExportQuizResults)
		}
	}
}
