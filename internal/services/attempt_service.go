package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classlight/quiz-service/internal/events"
	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/repositories"
)

// AttemptService is the attempt lifecycle controller: it creates attempts,
// buffers in-progress answers per active session, runs the countdown, and
// finalizes attempts through the grading engine. It is the only component
// with timing or concurrency concerns; attempts are independent aggregates
// and need no cross-attempt locking.
type AttemptService interface {
	Start(ctx context.Context, quizID string, student models.Identity) (*models.Attempt, error)
	RecordAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage, student models.Identity) error
	Submit(ctx context.Context, attemptID string, answers []models.Answer, student models.Identity) (*models.Attempt, error)

	GetQuiz(ctx context.Context, quizID string, caller models.Identity) (*models.Quiz, error)
	GetAttempt(ctx context.Context, attemptID string, caller models.Identity) (*models.Attempt, error)
	ListAttemptsByQuiz(ctx context.Context, quizID string, caller models.Identity) ([]*models.Attempt, error)
	ListAttemptsByStudent(ctx context.Context, studentID string, caller models.Identity) ([]*models.Attempt, error)
	TimeRemaining(ctx context.Context, attemptID string, caller models.Identity) (int, error)

	// CloseSession drops the answer buffer and countdown for an attempt
	// without submitting; unsaved answers are lost.
	CloseSession(attemptID string)
	// Shutdown closes every active session.
	Shutdown()
}

type attemptService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	publisher events.EventPublisher

	sessions *sessionRegistry
	tick     time.Duration // countdown granularity, one second in production

	// finalizeMu serializes finalization so a user submission and a timer
	// auto-submission racing on the same attempt cannot both pass the
	// completed check and double-finalize it.
	finalizeMu sync.Mutex
}

func NewAttemptService(repo repositories.Repository, logger *slog.Logger, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		logger:    logger,
		publisher: publisher,
		sessions:  newSessionRegistry(),
		tick:      time.Second,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start creates a fresh attempt for the quiz. Deliberately not idempotent:
// every call produces an independent attempt, even for the same
// (quiz, student) pair.
func (s *attemptService) Start(ctx context.Context, quizID string, student models.Identity) (*models.Attempt, error) {
	s.logger.Info("Starting quiz attempt",
		"quiz_id", quizID,
		"student_id", student.ID)

	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	// The calling UI may already filter unpublished quizzes; the controller
	// is still the authority.
	if !quiz.Published {
		return nil, ErrQuizNotPublished
	}

	attempt := &models.Attempt{
		QuizID:    quizID,
		StudentID: student.ID,
		StartTime: time.Now(),
		Answers:   []models.Answer{},
	}

	created, err := s.repo.Attempt().Create(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	sess := s.sessions.open(created.ID, student, quiz.TimeLimit*60)
	go s.runCountdown(sess)

	s.publishEvent(ctx, events.NewDomainEvent(events.EventAttemptStarted, events.AttemptStartedEvent{
		AttemptID: created.ID,
		QuizID:    quiz.ID,
		QuizTitle: quiz.Title,
		StudentID: student.ID,
		StartedAt: created.StartTime,
		TimeLimit: quiz.TimeLimit,
	}))

	s.logger.Info("Quiz attempt started",
		"attempt_id", created.ID,
		"quiz_id", quizID,
		"student_id", student.ID,
		"time_limit_minutes", quiz.TimeLimit)

	return created, nil
}

// RecordAnswer stages an answer in the session buffer. Nothing is persisted
// until submission; losing the session before submit loses unsaved answers.
func (s *attemptService) RecordAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage, student models.Identity) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != student.ID {
		return NewPermissionError(student.ID, attemptID, "attempt", "record_answer", "not owned by student")
	}
	if attempt.Completed {
		return ErrAttemptNotActive
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to get quiz: %w", err)
	}
	if _, ok := quiz.QuestionByID(questionID); !ok {
		return ErrQuestionNotFound
	}

	// A restarted process has no session for an older attempt; reopen a
	// buffer-only session (no countdown) so answering can continue.
	sess, ok := s.sessions.get(attemptID)
	if !ok {
		sess = s.sessions.open(attemptID, student, 0)
	}
	sess.setAnswer(questionID, value)

	return nil
}

// Submit is the single finalization path: user-initiated submission and
// timer-expiry auto-submission both land here, so grading is identical
// regardless of trigger. With answers == nil the session buffer is graded.
func (s *attemptService) Submit(ctx context.Context, attemptID string, answers []models.Answer, student models.Identity) (*models.Attempt, error) {
	return s.submit(ctx, attemptID, answers, student, false)
}

func (s *attemptService) submit(ctx context.Context, attemptID string, answers []models.Answer, student models.Identity, autoSubmit bool) (*models.Attempt, error) {
	s.logger.Info("Submitting quiz attempt",
		"attempt_id", attemptID,
		"student_id", student.ID,
		"auto_submit", autoSubmit)

	updated, quiz, err := s.finalize(ctx, attemptID, answers, student)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewDomainEvent(events.EventAttemptCompleted, events.AttemptCompletedEvent{
		AttemptID:   updated.ID,
		QuizID:      quiz.ID,
		QuizTitle:   quiz.Title,
		StudentID:   updated.StudentID,
		Score:       *updated.Score,
		CompletedAt: *updated.EndTime,
		AutoSubmit:  autoSubmit,
	}))

	s.logger.Info("Quiz attempt submitted",
		"attempt_id", attemptID,
		"score", *updated.Score,
		"auto_submit", autoSubmit)

	return updated, nil
}

// finalize holds finalizeMu from the completed check through the store
// update, so at most one caller wins for a given attempt.
func (s *attemptService) finalize(ctx context.Context, attemptID string, answers []models.Answer, student models.Identity) (*models.Attempt, *models.Quiz, error) {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()

	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != student.ID {
		return nil, nil, NewPermissionError(student.ID, attemptID, "attempt", "submit", "not owned by student")
	}
	if attempt.Completed {
		return nil, nil, ErrAttemptAlreadySubmitted
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, attempt.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrQuizNotFound
		}
		return nil, nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if answers == nil {
		if sess, ok := s.sessions.get(attemptID); ok {
			answers = sess.snapshot()
		}
	}

	// Grade before touching the record: a failed submit must never leave the
	// attempt completed without a score or with partial grading persisted.
	graded, score, err := Grade(quiz, answers)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	attempt.Answers = graded
	attempt.EndTime = &now
	attempt.Score = &score
	attempt.Completed = true

	updated, err := s.repo.Attempt().Update(ctx, attempt)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("failed to update attempt: %w", err)
	}

	s.CloseSession(attemptID)
	return updated, quiz, nil
}

func (s *attemptService) publishEvent(ctx context.Context, event *events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDomainEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
