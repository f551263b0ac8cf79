package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// AttemptHandler handles the student attempt flow: start, take, autosave,
// submit, results.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/attempts
// Starts a new attempt if the quiz is available and quota remains.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
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

	attempt, err := h.attemptService.Create(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// ListQuestions godoc
// GET /api/v1/student/attempts/:attempt_id/questions
// Returns the attempt's questions in their per-attempt order.
func (h *AttemptHandler) ListQuestions(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	questions, err := h.attemptService.ListQuestions(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// GetQuestion godoc
// GET /api/v1/student/attempts/:attempt_id/questions/:question_id
// Returns one question with options and the current saved answer.
func (h *AttemptHandler) GetQuestion(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.attemptService.GetQuestion(c.Request.Context(), attemptID, claims.UserID, questionID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/questions/:question_id/answer
// Saves the current answer to one question (full replace, idempotent).
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	dropped, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, claims.UserID, questionID, req)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true, "dropped_option_ids": dropped})
}

// GetStatus godoc
// GET /api/v1/student/attempts/:attempt_id/status
// Polling endpoint: completion flag plus freshly evaluated remaining time.
func (h *AttemptHandler) GetStatus(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	status, err := h.attemptService.GetStatus(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// Finalize godoc
// POST /api/v1/student/attempts/:attempt_id/finalize
// Submits the attempt and returns the frozen result. Idempotent.
func (h *AttemptHandler) Finalize(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	result, err := h.attemptService.Finalize(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Result godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the frozen result of a completed attempt, with the per-question
// review when the quiz shows results immediately.
func (h *AttemptHandler) Result(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	result, reviews, err := h.attemptService.Result(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	body := gin.H{"result": result}
	if reviews != nil {
		body["answers"] = reviews
	}
	response.Success(c, http.StatusOK, body)
}

// attemptParams extracts the claims and attempt id shared by every attempt
// route, failing the request itself when either is missing.
func attemptParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}

	return claims, attemptID, true
}

// failAttemptError maps attempt flow errors onto the response envelope.
func failAttemptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuizNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrQuizUnavailable):
		response.Fail(c, http.StatusForbidden, response.ErrQuizUnavailable)
	case errors.Is(err, service.ErrQuotaExceeded):
		response.Fail(c, http.StatusConflict, response.ErrQuotaExceeded)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyCompleted)
	case errors.Is(err, service.ErrNotCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotCompleted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
