package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// QuizHandler handles the student-facing quiz catalogue.
type QuizHandler struct {
	quizService *service.QuizService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

// ListQuizzes godoc
// GET /api/v1/student/quizzes
// Lists active quizzes with pagination and the student's own attempt usage
// overlaid.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	quizzes, pagination, err := h.quizService.ListForStudent(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"quizzes": quizzes}, pagination)
}

// GetQuiz godoc
// GET /api/v1/student/quizzes/:quiz_id
// Returns one quiz with the student's attempt usage. Question content is
// only reachable through an attempt.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
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

	entry, err := h.quizService.GetForStudent(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrQuizNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": entry})
}
