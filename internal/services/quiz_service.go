package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/classlight/quiz-service/internal/events"
	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/repositories"
	"github.com/classlight/quiz-service/internal/utils"
)

// QuizService owns the quiz catalog: authoring-side create/update/delete and
// the publish flag. It never mutates attempts except for the cascade that
// removes a deleted quiz's attempts.
type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, teacher models.Identity) (*models.Quiz, error)
	Update(ctx context.Context, quizID string, req *UpdateQuizRequest, teacher models.Identity) (*models.Quiz, error)
	Delete(ctx context.Context, quizID string, teacher models.Identity) error
	Publish(ctx context.Context, quizID string, teacher models.Identity) (*models.Quiz, error)
	Unpublish(ctx context.Context, quizID string, teacher models.Identity) (*models.Quiz, error)
	GetByID(ctx context.Context, quizID string) (*models.Quiz, error)
	List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, error)
}

type CreateQuizRequest struct {
	Title       string            `json:"title" validate:"required,min=1,max=200"`
	Description string            `json:"description" validate:"max=1000"`
	TimeLimit   int               `json:"time_limit" validate:"required,min=1"`
	Questions   []models.Question `json:"questions" validate:"dive"`
}

type UpdateQuizRequest struct {
	Title       *string            `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string            `json:"description" validate:"omitempty,max=1000"`
	TimeLimit   *int               `json:"time_limit" validate:"omitempty,min=1"`
	Questions   *[]models.Question `json:"questions" validate:"omitempty,dive"`
}

type quizService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *utils.Validator
	publisher events.EventPublisher
}

func NewQuizService(repo repositories.Repository, logger *slog.Logger, validator *utils.Validator, publisher events.EventPublisher) QuizService {
	return &quizService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, teacher models.Identity) (*models.Quiz, error) {
	s.logger.Info("Creating quiz", "title", req.Title, "teacher_id", teacher.ID)

	if !teacher.CanGrade() {
		return nil, NewPermissionError(teacher.ID, "", "quiz", "create", "requires teacher role")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	questions := make([]models.Question, len(req.Questions))
	copy(questions, req.Questions)
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		if err := questions[i].ValidatePayload(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
	}

	quiz := &models.Quiz{
		Title:       req.Title,
		Description: req.Description,
		TeacherID:   teacher.ID,
		TimeLimit:   req.TimeLimit,
		Questions:   questions,
	}

	created, err := s.repo.Quiz().Create(ctx, quiz)
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created", "quiz_id", created.ID, "questions", len(created.Questions))
	return created, nil
}

func (s *quizService) Update(ctx context.Context, quizID string, req *UpdateQuizRequest, teacher models.Identity) (*models.Quiz, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	quiz, err := s.ownedQuiz(ctx, quizID, teacher, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = *req.TimeLimit
	}
	if req.Questions != nil {
		questions := make([]models.Question, len(*req.Questions))
		copy(questions, *req.Questions)
		for i := range questions {
			if questions[i].ID == "" {
				questions[i].ID = uuid.NewString()
			}
			if err := questions[i].ValidatePayload(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
			}
		}
		quiz.Questions = questions
	}
	if quiz.Published && len(quiz.Questions) == 0 {
		return nil, ErrQuizNotPublishable
	}

	updated, err := s.repo.Quiz().Update(ctx, quiz)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}

	s.logger.Info("Quiz updated", "quiz_id", quizID)
	return updated, nil
}

// Delete removes the quiz and cascades over its attempts. The substrate has
// no multi-record transaction, so the cascade can complete partially; it is
// retry-safe because re-running it on a partially deleted set is idempotent.
// Attempts go first, the quiz record last, so an interrupted cascade can be
// resumed by deleting the quiz again.
func (s *quizService) Delete(ctx context.Context, quizID string, teacher models.Identity) error {
	quiz, err := s.ownedQuiz(ctx, quizID, teacher, "delete")
	if err != nil {
		return err
	}

	attempts, err := s.repo.Attempt().List(ctx, repositories.AttemptFilters{QuizID: &quizID})
	if err != nil {
		return fmt.Errorf("failed to list attempts for cascade: %w", err)
	}
	for _, attempt := range attempts {
		if _, err := s.repo.Attempt().Delete(ctx, attempt.ID); err != nil {
			return fmt.Errorf("cascade delete of attempt %s: %w", attempt.ID, err)
		}
	}

	if _, err := s.repo.Quiz().Delete(ctx, quizID); err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	s.publishEvent(ctx, events.NewDomainEvent(events.EventQuizDeleted, events.QuizDeletedEvent{
		QuizID:          quizID,
		TeacherID:       quiz.TeacherID,
		AttemptsRemoved: len(attempts),
	}))

	s.logger.Info("Quiz deleted",
		"quiz_id", quizID,
		"attempts_removed", len(attempts))
	return nil
}

func (s *quizService) Publish(ctx context.Context, quizID string, teacher models.Identity) (*models.Quiz, error) {
	quiz, err := s.ownedQuiz(ctx, quizID, teacher, "publish")
	if err != nil {
		return nil, err
	}
	// A published quiz needs at least one question. Zero total points is
	// allowed here and only fails at grading time.
	if len(quiz.Questions) == 0 {
		return nil, ErrQuizNotPublishable
	}
	if quiz.Published {
		return quiz, nil
	}

	quiz.Published = true
	updated, err := s.repo.Quiz().Update(ctx, quiz)
	if err != nil {
		return nil, fmt.Errorf("failed to publish quiz: %w", err)
	}

	s.publishEvent(ctx, events.NewDomainEvent(events.EventQuizPublished, events.QuizPublishedEvent{
		QuizID:    updated.ID,
		QuizTitle: updated.Title,
		TeacherID: updated.TeacherID,
	}))

	s.logger.Info("Quiz published", "quiz_id", quizID)
	return updated, nil
}

func (s *quizService) Unpublish(ctx context.Context, quizID string, teacher models.Identity) (*models.Quiz, error) {
	quiz, err := s.ownedQuiz(ctx, quizID, teacher, "unpublish")
	if err != nil {
		return nil, err
	}
	if !quiz.Published {
		return quiz, nil
	}

	quiz.Published = false
	updated, err := s.repo.Quiz().Update(ctx, quiz)
	if err != nil {
		return nil, fmt.Errorf("failed to unpublish quiz: %w", err)
	}

	s.logger.Info("Quiz unpublished", "quiz_id", quizID)
	return updated, nil
}

func (s *quizService) GetByID(ctx context.Context, quizID string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, error) {
	quizzes, err := s.repo.Quiz().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return quizzes, nil
}

// ownedQuiz loads the quiz and enforces that the caller owns it (admins may
// act on any quiz).
func (s *quizService) ownedQuiz(ctx context.Context, quizID string, teacher models.Identity, action string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if quiz.TeacherID != teacher.ID && teacher.Role != models.RoleAdmin {
		return nil, NewPermissionError(teacher.ID, quizID, "quiz", action, "not owned by teacher")
	}
	return quiz, nil
}

func (s *quizService) publishEvent(ctx context.Context, event *events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDomainEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
