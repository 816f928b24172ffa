package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/repositories"
)

// ===== ANSWER SESSIONS =====

// attemptSession holds the staged answers and countdown state for one active
// attempt. One writer per attempt is assumed; concurrent sessions for the
// same attempt are undefined (last write wins at the store layer).
type attemptSession struct {
	attemptID string
	student   models.Identity

	mu        sync.Mutex
	remaining int // seconds; <= 0 means no countdown for this session
	answers   map[string]json.RawMessage
	order     []string

	done      chan struct{}
	closeOnce sync.Once
}

func (sess *attemptSession) setAnswer(questionID string, value json.RawMessage) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.answers[questionID]; !ok {
		sess.order = append(sess.order, questionID)
	}
	sess.answers[questionID] = value
}

// snapshot returns the buffered answers in first-recorded order.
func (sess *attemptSession) snapshot() []models.Answer {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	answers := make([]models.Answer, 0, len(sess.order))
	for _, questionID := range sess.order {
		answers = append(answers, models.Answer{
			QuestionID: questionID,
			Value:      sess.answers[questionID],
		})
	}
	return answers
}

// countDown decrements the counter by one second and reports whether it just
// reached zero.
func (sess *attemptSession) countDown() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.remaining <= 0 {
		return false
	}
	sess.remaining--
	return sess.remaining == 0
}

func (sess *attemptSession) timeRemaining() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.remaining
}

func (sess *attemptSession) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
	})
}

// sessionRegistry tracks active sessions by attempt id.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*attemptSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*attemptSession)}
}

func (r *sessionRegistry) open(attemptID string, student models.Identity, seconds int) *attemptSession {
	sess := &attemptSession{
		attemptID: attemptID,
		student:   student,
		remaining: seconds,
		answers:   make(map[string]json.RawMessage),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if old, ok := r.sessions[attemptID]; ok {
		old.close()
	}
	r.sessions[attemptID] = sess
	r.mu.Unlock()

	return sess
}

func (r *sessionRegistry) get(attemptID string) (*attemptSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[attemptID]
	return sess, ok
}

func (r *sessionRegistry) remove(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[attemptID]; ok {
		sess.close()
		delete(r.sessions, attemptID)
	}
}

func (r *sessionRegistry) removeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		sess.close()
		delete(r.sessions, id)
	}
}

// ===== COUNTDOWN =====

// runCountdown drives the per-attempt timer: one decrement per tick, and an
// automatic submission of whatever answers are buffered when it reaches
// zero. The countdown is advisory and session-local; it is not re-validated
// against the attempt's start time, so clock skew or a suspended session can
// let an attempt run long. That is an accepted limitation, not a defect.
func (s *attemptService) runCountdown(sess *attemptSession) {
	if sess.timeRemaining() <= 0 {
		return
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			if !sess.countDown() {
				continue
			}
			s.logger.Info("Attempt timer expired, auto-submitting",
				"attempt_id", sess.attemptID)
			if _, err := s.submit(context.Background(), sess.attemptID, sess.snapshot(), sess.student, true); err != nil {
				// Submitted by the user in the same instant, or storage is
				// down; either way the ticker stops here.
				s.logger.Error("Auto-submit failed",
					"attempt_id", sess.attemptID,
					"error", err)
			}
			return
		}
	}
}

// ===== TIME MANAGEMENT =====

func (s *attemptService) TimeRemaining(ctx context.Context, attemptID string, caller models.Identity) (int, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrAttemptNotFound
		}
		return 0, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != caller.ID && !caller.CanGrade() {
		return 0, NewPermissionError(caller.ID, attemptID, "attempt", "time_remaining", "not owner or insufficient permissions")
	}
	if attempt.Completed {
		return 0, ErrAttemptNotActive
	}

	if sess, ok := s.sessions.get(attemptID); ok {
		return sess.timeRemaining(), nil
	}
	return 0, nil
}

func (s *attemptService) CloseSession(attemptID string) {
	s.sessions.remove(attemptID)
}

func (s *attemptService) Shutdown() {
	s.sessions.removeAll()
}

// ===== READ ACCESSORS =====

func (s *attemptService) GetQuiz(ctx context.Context, quizID string, _ models.Identity) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) GetAttempt(ctx context.Context, attemptID string, caller models.Identity) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	// Students read only their own attempts.
	if attempt.StudentID != caller.ID && !caller.CanGrade() {
		return nil, NewPermissionError(caller.ID, attemptID, "attempt", "read", "not owner or insufficient permissions")
	}
	return attempt, nil
}

func (s *attemptService) ListAttemptsByQuiz(ctx context.Context, quizID string, caller models.Identity) ([]*models.Attempt, error) {
	if !caller.CanGrade() {
		return nil, NewPermissionError(caller.ID, quizID, "quiz", "list_attempts", "insufficient permissions")
	}

	attempts, err := s.repo.Attempt().List(ctx, repositories.AttemptFilters{QuizID: &quizID})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (s *attemptService) ListAttemptsByStudent(ctx context.Context, studentID string, caller models.Identity) ([]*models.Attempt, error) {
	if studentID != caller.ID && !caller.CanGrade() {
		return nil, NewPermissionError(caller.ID, studentID, "student", "list_attempts", "not self or insufficient permissions")
	}

	attempts, err := s.repo.Attempt().List(ctx, repositories.AttemptFilters{StudentID: &studentID})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}
