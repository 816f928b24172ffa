package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/store"
)

func sampleQuiz() *models.Quiz {
	correctIndex := 1
	correctText := "oslo"
	return &models.Quiz{
		Title:     "Geography",
		TeacherID: "t1",
		TimeLimit: 10,
		Questions: []models.Question{
			{
				ID:           "q1",
				Text:         "Capital of Norway?",
				Type:         models.MultipleChoice,
				Points:       5,
				Options:      []string{"Bergen", "Oslo"},
				CorrectIndex: &correctIndex,
			},
			{
				ID:          "q2",
				Text:        "Name it",
				Type:        models.ShortAnswer,
				Points:      3,
				CorrectText: &correctText,
			},
		},
	}
}

func TestQuizRepositoryDeleteRollsBackOnSaveFailure(t *testing.T) {
	kv := &flakyKV{inner: store.NewMemoryKV()}
	ctx := context.Background()
	repo, err := NewQuizRepository(ctx, kv)
	require.NoError(t, err)

	created, err := repo.Create(ctx, sampleQuiz())
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
}

func TestQuizRepositoryGetDetachesQuestionPayloads(t *testing.T) {
	kv := store.NewMemoryKV()
	ctx := context.Background()
	repo, err := NewQuizRepository(ctx, kv)
	require.NoError(t, err)

	created, err := repo.Create(ctx, sampleQuiz())
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	// Mutating a returned copy's payload must not reach the stored record.
	got.Questions[0].Options[1] = "Tampered"
	*got.Questions[0].CorrectIndex = 0
	*got.Questions[1].CorrectText = "tampered"

	fresh, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Oslo", fresh.Questions[0].Options[1])
	assert.Equal(t, 1, *fresh.Questions[0].CorrectIndex)
	assert.Equal(t, "oslo", *fresh.Questions[1].CorrectText)
}
