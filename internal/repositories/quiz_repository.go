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

const quizCollection = "quizzes"

type QuizRepository interface {
	GetByID(ctx context.Context, id string) (*models.Quiz, error)
	List(ctx context.Context, filters QuizFilters) ([]*models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) (*models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) (*models.Quiz, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// kvQuizRepository keeps the working set in memory and writes the whole
// collection back to the substrate on every mutation.
type kvQuizRepository struct {
	kv store.KV

	mu      sync.RWMutex
	quizzes []*models.Quiz
}

func NewQuizRepository(ctx context.Context, kv store.KV) (QuizRepository, error) {
	repo := &kvQuizRepository{kv: kv}

	data, err := kv.Load(ctx, quizCollection)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &repo.quizzes); err != nil {
			return nil, fmt.Errorf("decode %s collection: %w", quizCollection, err)
		}
	}
	return repo, nil
}

func (r *kvQuizRepository) GetByID(_ context.Context, id string) (*models.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, quiz := range r.quizzes {
		if quiz.ID == id {
			return cloneQuiz(quiz), nil
		}
	}
	return nil, ErrNotFound
}

func (r *kvQuizRepository) List(_ context.Context, filters QuizFilters) ([]*models.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Quiz
	for _, quiz := range r.quizzes {
		if filters.TeacherID != nil && quiz.TeacherID != *filters.TeacherID {
			continue
		}
		if filters.Published != nil && quiz.Published != *filters.Published {
			continue
		}
		out = append(out, cloneQuiz(quiz))
	}
	return out, nil
}

func (r *kvQuizRepository) Create(ctx context.Context, quiz *models.Quiz) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	created := cloneQuiz(quiz)
	created.ID = uuid.NewString()
	created.CreatedAt = now
	created.UpdatedAt = now

	r.quizzes = append(r.quizzes, created)
	if err := r.persist(ctx); err != nil {
		r.quizzes = r.quizzes[:len(r.quizzes)-1]
		return nil, err
	}
	return cloneQuiz(created), nil
}

func (r *kvQuizRepository) Update(ctx context.Context, quiz *models.Quiz) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.quizzes {
		if existing.ID != quiz.ID {
			continue
		}
		updated := cloneQuiz(quiz)
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = time.Now()

		r.quizzes[i] = updated
		if err := r.persist(ctx); err != nil {
			r.quizzes[i] = existing
			return nil, err
		}
		return cloneQuiz(updated), nil
	}
	return nil, ErrNotFound
}

func (r *kvQuizRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.quizzes {
		if existing.ID != id {
			continue
		}
		prev := r.quizzes
		r.quizzes = append(r.quizzes[:i:i], r.quizzes[i+1:]...)
		if err := r.persist(ctx); err != nil {
			r.quizzes = prev
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (r *kvQuizRepository) persist(ctx context.Context) error {
	data, err := json.Marshal(r.quizzes)
	if err != nil {
		return fmt.Errorf("encode %s collection: %w", quizCollection, err)
	}
	return r.kv.Save(ctx, quizCollection, data)
}

func cloneQuiz(quiz *models.Quiz) *models.Quiz {
	out := *quiz
	if quiz.Questions != nil {
		out.Questions = make([]models.Question, len(quiz.Questions))
		for i, question := range quiz.Questions {
			out.Questions[i] = cloneQuestion(question)
		}
	}
	return &out
}

// cloneQuestion detaches the payload fields so a returned copy shares no
// memory with the stored record.
func cloneQuestion(question models.Question) models.Question {
	if question.Options != nil {
		question.Options = append([]string(nil), question.Options...)
	}
	if question.CorrectIndex != nil {
		index := *question.CorrectIndex
		question.CorrectIndex = &index
	}
	if question.CorrectBool != nil {
		correct := *question.CorrectBool
		question.CorrectBool = &correct
	}
	if question.CorrectText != nil {
		text := *question.CorrectText
		question.CorrectText = &text
	}
	return question
}
