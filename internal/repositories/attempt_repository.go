package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/store"
)

const attemptCollection = "quiz_attempts"

type AttemptRepository interface {
	GetByID(ctx context.Context, id string) (*models.Attempt, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.Attempt, error)
	Create(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error)
	Update(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type kvAttemptRepository struct {
	kv store.KV

	mu       sync.RWMutex
	attempts []*models.Attempt
}

func NewAttemptRepository(ctx context.Context, kv store.KV) (AttemptRepository, error) {
	repo := &kvAttemptRepository{kv: kv}

	data, err := kv.Load(ctx, attemptCollection)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &repo.attempts); err != nil {
			return nil, fmt.Errorf("decode %s collection: %w", attemptCollection, err)
		}
	}
	return repo, nil
}

func (r *kvAttemptRepository) GetByID(_ context.Context, id string) (*models.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, attempt := range r.attempts {
		if attempt.ID == id {
			return cloneAttempt(attempt), nil
		}
	}
	return nil, ErrNotFound
}

func (r *kvAttemptRepository) List(_ context.Context, filters AttemptFilters) ([]*models.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Attempt
	for _, attempt := range r.attempts {
		if filters.QuizID != nil && attempt.QuizID != *filters.QuizID {
			continue
		}
		if filters.StudentID != nil && attempt.StudentID != *filters.StudentID {
			continue
		}
		if filters.Completed != nil && attempt.Completed != *filters.Completed {
			continue
		}
		out = append(out, cloneAttempt(attempt))
	}
	return out, nil
}

func (r *kvAttemptRepository) Create(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := cloneAttempt(attempt)
	created.ID = uuid.NewString()
	if created.StartTime.IsZero() {
		created.StartTime = time.Now()
	}

	r.attempts = append(r.attempts, created)
	if err := r.persist(ctx); err != nil {
		r.attempts = r.attempts[:len(r.attempts)-1]
		return nil, err
	}
	return cloneAttempt(created), nil
}

func (r *kvAttemptRepository) Update(ctx context.Context, attempt *models.Attempt) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.attempts {
		if existing.ID != attempt.ID {
			continue
		}
		updated := cloneAttempt(attempt)
		r.attempts[i] = updated
		if err := r.persist(ctx); err != nil {
			r.attempts[i] = existing
			return nil, err
		}
		return cloneAttempt(updated), nil
	}
	return nil, ErrNotFound
}

func (r *kvAttemptRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.attempts {
		if existing.ID != id {
			continue
		}
		prev := r.attempts
		r.attempts = append(r.attempts[:i:i], r.attempts[i+1:]...)
		if err := r.persist(ctx); err != nil {
			r.attempts = prev
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (r *kvAttemptRepository) persist(ctx context.Context) error {
	data, err := json.Marshal(r.attempts)
	if err != nil {
		return fmt.Errorf("encode %s collection: %w", attemptCollection, err)
	}
	return r.kv.Save(ctx, attemptCollection, data)
}

func cloneAttempt(attempt *models.Attempt) *models.Attempt {
	out := *attempt
	if attempt.Answers != nil {
		out.Answers = make([]models.Answer, len(attempt.Answers))
		copy(out.Answers, attempt.Answers)
	}
	if attempt.EndTime != nil {
		end := *attempt.EndTime
		out.EndTime = &end
	}
	if attempt.Score != nil {
		score := *attempt.Score
		out.Score = &score
	}
	return &out
}
