package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/services"
	"github.com/classlight/quiz-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// ===== REQUEST STRUCTURES =====

type StartAttemptRequest struct {
	QuizID string `json:"quiz_id" binding:"required"`
}

type SubmitAnswerRequest struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Value      json.RawMessage `json:"value" binding:"required"`
}

type SubmitAttemptRequest struct {
	// Answers overrides the buffered answers when present. A missing or
	// null field submits whatever was recorded during the attempt.
	Answers []models.Answer `json:"answers"`
}

// StartAttempt opens a new attempt against a published quiz
// @Summary Start attempt
// @Description Starts a new attempt and its countdown timer
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body StartAttemptRequest true "Quiz to attempt"
// @Success 201 {object} models.Attempt
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting attempt", "quiz_id", req.QuizID, "student_id", caller.ID)

	attempt, err := h.attemptService.Start(c.Request.Context(), req.QuizID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// SubmitAnswer records one answer on an active attempt
// @Summary Record answer
// @Description Buffers an answer for a question on an active attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param answer body SubmitAnswerRequest true "Answer value"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/answer [post]
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), id, req.QuestionID, req.Value, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer recorded",
	})
}

// SubmitAttempt finalizes an attempt and grades it
// @Summary Submit attempt
// @Description Grades the attempt and closes its session
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param submission body SubmitAttemptRequest false "Final answers"
// @Success 200 {object} models.Attempt
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	var req SubmitAttemptRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", id)

	attempt, err := h.attemptService.Submit(c.Request.Context(), id, req.Answers, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttempt retrieves an attempt by ID
// @Summary Get attempt
// @Description Retrieves an attempt; students only see their own
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} models.Attempt
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetTimeRemaining reports the seconds left on an active attempt
// @Summary Get time remaining
// @Description Returns the advisory countdown for an active attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} map[string]int
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/time-remaining [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	id := ParseStringIDParam(c, "id")
	if id == "" {
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	remaining, err := h.attemptService.TimeRemaining(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id":     id,
		"time_remaining": remaining,
	})
}

// GetAttemptsByQuiz lists all attempts recorded against a quiz
// @Summary List attempts by quiz
// @Description Lists attempts for a quiz, teacher access only
// @Tags attempts
// @Produce json
// @Param quiz_id path string true "Quiz ID"
// @Success 200 {array} models.Attempt
// @Failure 403 {object} ErrorResponse
// @Router /attempts/quiz/{quiz_id} [get]
func (h *AttemptHandler) GetAttemptsByQuiz(c *gin.Context) {
	quizID := ParseStringIDParam(c, "quiz_id")
	if quizID == "" {
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListAttemptsByQuiz(c.Request.Context(), quizID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttemptsByStudent lists a student's attempts
// @Summary List attempts by student
// @Description Lists attempts for a student; students only see their own
// @Tags attempts
// @Produce json
// @Param student_id path string true "Student ID"
// @Success 200 {array} models.Attempt
// @Failure 403 {object} ErrorResponse
// @Router /attempts/student/{student_id} [get]
func (h *AttemptHandler) GetAttemptsByStudent(c *gin.Context) {
	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	caller, ok := RequireIdentity(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListAttemptsByStudent(c.Request.Context(), studentID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}
