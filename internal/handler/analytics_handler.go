package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// AnalyticsHandler handles teacher-facing attempt analytics.
type AnalyticsHandler struct {
	quizService *service.QuizService
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(quizService *service.QuizService) *AnalyticsHandler {
	return &AnalyticsHandler{quizService: quizService}
}

// QuizAnalytics godoc
// GET /api/v1/teacher/quizzes/:quiz_id/analytics
// Returns aggregate attempt statistics for a quiz the teacher owns.
func (h *AnalyticsHandler) QuizAnalytics(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	analytics, err := h.quizService.Analytics(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuizNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotQuizOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"analytics": analytics})
}
