package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/store"
)

// flakyKV fails saves on demand, standing in for a substrate outage.
type flakyKV struct {
	inner     *store.MemoryKV
	failSaves bool
}

func (f *flakyKV) Load(ctx context.Context, collection string) ([]byte, error) {
	return f.inner.Load(ctx, collection)
}

func (f *flakyKV) Save(ctx context.Context, collection string, data []byte) error {
	if f.failSaves {
		return fmt.Errorf("%w: save %s: connection refused", store.ErrStorageUnavailable, collection)
	}
	return f.inner.Save(ctx, collection, data)
}

func TestAttemptRepositoryCreateAssignsUniqueIDs(t *testing.T) {
	kv := store.NewMemoryKV()
	repo, err := NewAttemptRepository(context.Background(), kv)
	require.NoError(t, err)

	first, err := repo.Create(context.Background(), &models.Attempt{QuizID: "quiz-1", StudentID: "s1"})
	require.NoError(t, err)
	second, err := repo.Create(context.Background(), &models.Attempt{QuizID: "quiz-1", StudentID: "s1"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.StartTime.IsZero())
}

func TestAttemptRepositorySurvivesReload(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()

	repo, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)

	end := time.Now()
	score := 75
	created, err := repo.Create(ctx, &models.Attempt{
		QuizID:    "quiz-1",
		StudentID: "s1",
		Answers:   []models.Answer{{QuestionID: "q1", Value: models.ChoiceValue(2)}},
		EndTime:   &end,
		Score:     &score,
		Completed: true,
	})
	require.NoError(t, err)

	// A fresh repository over the same substrate sees the persisted record.
	reloaded, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)

	got, err := reloaded.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", got.QuizID)
	assert.True(t, got.Completed)
	require.NotNil(t, got.Score)
	assert.Equal(t, 75, *got.Score)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, "q1", got.Answers[0].QuestionID)
}

func TestAttemptRepositoryListFilters(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	repo, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Attempt{QuizID: "quiz-1", StudentID: "s1", Completed: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.Attempt{QuizID: "quiz-1", StudentID: "s2"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.Attempt{QuizID: "quiz-2", StudentID: "s1"})
	require.NoError(t, err)

	quizID := "quiz-1"
	completed := true

	byQuiz, err := repo.List(ctx, AttemptFilters{QuizID: &quizID})
	require.NoError(t, err)
	assert.Len(t, byQuiz, 2)

	done, err := repo.List(ctx, AttemptFilters{QuizID: &quizID, Completed: &completed})
	require.NoError(t, err)
	assert.Len(t, done, 1)
	assert.Equal(t, "s1", done[0].StudentID)

	_, err = repo.GetByID(ctx, "nope")
	assert.True(t, IsNotFoundError(err))
}

func TestAttemptRepositoryDeleteRollsBackOnSaveFailure(t *testing.T) {
	kv := &flakyKV{inner: store.NewMemoryKV()}
	ctx := context.Background()
	repo, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)

	created, err := repo.Create(ctx, &models.Attempt{QuizID: "quiz-1", StudentID: "s1"})
	require.NoError(t, err)

	kv.failSaves = true
	deleted, err := repo.Delete(ctx, created.ID)
	require.Error(t, err)
	assert.False(t, deleted)

	// A failed delete must not hide the record: it stays visible in-process
	// so a retry can still find it.
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	kv.failSaves = false
	deleted, err = repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetByID(ctx, created.ID)
	assert.True(t, IsNotFoundError(err))

	// The removal is durable: a reload over the same substrate agrees.
	reloaded, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)
	_, err = reloaded.GetByID(ctx, created.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestAttemptRepositoryGetReturnsDetachedCopy(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	repo, err := NewAttemptRepository(ctx, kv)
	require.NoError(t, err)

	created, err := repo.Create(ctx, &models.Attempt{QuizID: "quiz-1", StudentID: "s1"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	got.Completed = true
	got.StudentID = "tampered"

	fresh, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, fresh.Completed)
	assert.Equal(t, "s1", fresh.StudentID)
}
