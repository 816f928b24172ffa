package repositories

import (
	"context"
	"errors"

	"github.com/classlight/quiz-service/internal/store"
)

// ErrNotFound is returned when a record id does not exist in its store.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err is the repository not-found condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ===== FILTERS =====

type QuizFilters struct {
	TeacherID *string
	Published *bool
}

type AttemptFilters struct {
	QuizID    *string
	StudentID *string
	Completed *bool
}

// ===== AGGREGATE REPOSITORY =====

// Repository bundles the catalog and attempt stores. Both share one KV
// substrate but own disjoint collections.
type Repository interface {
	Quiz() QuizRepository
	Attempt() AttemptRepository
}

type repository struct {
	quiz    QuizRepository
	attempt AttemptRepository
}

// NewRepository loads both collections from the substrate. A failed load
// surfaces immediately so the process does not start on top of unreadable
// state.
func NewRepository(ctx context.Context, kv store.KV) (Repository, error) {
	quizRepo, err := NewQuizRepository(ctx, kv)
	if err != nil {
		return nil, err
	}
	attemptRepo, err := NewAttemptRepository(ctx, kv)
	if err != nil {
		return nil, err
	}
	return &repository{quiz: quizRepo, attempt: attemptRepo}, nil
}

func (r *repository) Quiz() QuizRepository {
	return r.quiz
}

func (r *repository) Attempt() AttemptRepository {
	return r.attempt
}
