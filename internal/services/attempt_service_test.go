package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classlight/quiz-service/internal/events"
	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/repositories"
	"github.com/classlight/quiz-service/internal/store"
)

var (
	testStudent      = models.Identity{ID: "student-1", Name: "Student One", Role: models.RoleStudent}
	testOtherStudent = models.Identity{ID: "student-2", Name: "Student Two", Role: models.RoleStudent}
	testTeacher      = models.Identity{ID: "teacher-1", Name: "Teacher One", Role: models.RoleTeacher}
)

type attemptTestEnv struct {
	svc       *attemptService
	repo      repositories.Repository
	publisher *events.MockEventPublisher
}

func newAttemptTestEnv(t *testing.T) *attemptTestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := repositories.NewRepository(context.Background(), store.NewMemoryKV())
	require.NoError(t, err)

	publisher := events.NewMockEventPublisher(logger)
	svc := NewAttemptService(repo, logger, publisher).(*attemptService)
	t.Cleanup(svc.Shutdown)

	return &attemptTestEnv{svc: svc, repo: repo, publisher: publisher}
}

func (env *attemptTestEnv) seedQuiz(t *testing.T, published bool) *models.Quiz {
	t.Helper()

	quiz := twoQuestionQuiz()
	quiz.TeacherID = testTeacher.ID
	quiz.Published = published

	created, err := env.repo.Quiz().Create(context.Background(), quiz)
	require.NoError(t, err)
	return created
}

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

func TestStartAttemptQuizNotFound(t *testing.T) {
	env := newAttemptTestEnv(t)

	_, err := env.svc.Start(context.Background(), "no-such-quiz", testStudent)
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestStartAttemptRejectsUnpublishedQuiz(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, false)

	_, err := env.svc.Start(context.Background(), quiz.ID, testStudent)
	assert.ErrorIs(t, err, ErrQuizNotPublished)
}

func TestStartCreatesIndependentAttempts(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	first, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)
	second, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	// Each attempt is graded on its own.
	submitted, err := env.svc.Submit(ctx, first.ID, []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}, testStudent)
	require.NoError(t, err)
	assert.Equal(t, 100, *submitted.Score)

	other, err := env.svc.GetAttempt(ctx, second.ID, testStudent)
	require.NoError(t, err)
	assert.False(t, other.Completed)
}

func TestRecordAnswerBuffersUntilSubmit(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	require.NoError(t, env.svc.RecordAnswer(ctx, attempt.ID, "q1", models.ChoiceValue(0), testStudent))
	require.NoError(t, env.svc.RecordAnswer(ctx, attempt.ID, "q2", models.BoolValue(false), testStudent))
	// Changing an answer keeps its original position.
	require.NoError(t, env.svc.RecordAnswer(ctx, attempt.ID, "q2", models.BoolValue(true), testStudent))

	// Nothing persisted before submission.
	stored, err := env.repo.Attempt().GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Answers)

	submitted, err := env.svc.Submit(ctx, attempt.ID, nil, testStudent)
	require.NoError(t, err)
	assert.Equal(t, 100, *submitted.Score)
	assert.True(t, submitted.Completed)
	require.NotNil(t, submitted.EndTime)
	require.Len(t, submitted.Answers, 2)
	assert.Equal(t, "q1", submitted.Answers[0].QuestionID)
	assert.Equal(t, "q2", submitted.Answers[1].QuestionID)
}

func TestRecordAnswerValidation(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	err = env.svc.RecordAnswer(ctx, "no-such-attempt", "q1", models.ChoiceValue(0), testStudent)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	err = env.svc.RecordAnswer(ctx, attempt.ID, "no-such-question", models.ChoiceValue(0), testStudent)
	assert.ErrorIs(t, err, ErrQuestionNotFound)

	err = env.svc.RecordAnswer(ctx, attempt.ID, "q1", models.ChoiceValue(0), testOtherStudent)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)
}

func TestRecordAnswerAfterSubmitFails(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, attempt.ID, nil, testStudent)
	require.NoError(t, err)

	err = env.svc.RecordAnswer(ctx, attempt.ID, "q1", models.ChoiceValue(0), testStudent)
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestSubmitExplicitAnswersOverrideBuffer(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	require.NoError(t, env.svc.RecordAnswer(ctx, attempt.ID, "q1", models.ChoiceValue(3), testStudent))

	submitted, err := env.svc.Submit(ctx, attempt.ID, []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}, testStudent)
	require.NoError(t, err)
	assert.Equal(t, 100, *submitted.Score)
}

func TestDoubleSubmitLeavesRecordUntouched(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	first, err := env.svc.Submit(ctx, attempt.ID, []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
	}, testStudent)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, attempt.ID, []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}, testStudent)
	assert.ErrorIs(t, err, ErrAttemptAlreadySubmitted)

	stored, err := env.repo.Attempt().GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.Score, *stored.Score)
	assert.Equal(t, first.EndTime.Unix(), stored.EndTime.Unix())
}

func TestSubmitStorageFailureLeavesAttemptResumable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := &flakyKV{inner: store.NewMemoryKV()}
	ctx := context.Background()

	repo, err := repositories.NewRepository(ctx, kv)
	require.NoError(t, err)
	publisher := events.NewMockEventPublisher(logger)
	svc := NewAttemptService(repo, logger, publisher).(*attemptService)
	t.Cleanup(svc.Shutdown)

	quiz := twoQuestionQuiz()
	quiz.TeacherID = testTeacher.ID
	created, err := repo.Quiz().Create(ctx, quiz)
	require.NoError(t, err)

	attempt, err := svc.Start(ctx, created.ID, testStudent)
	require.NoError(t, err)

	answers := []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}

	kv.failSaves = true
	_, err = svc.Submit(ctx, attempt.ID, answers, testStudent)
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))

	// The failed submission left no partial grading behind and no event.
	stored, err := repo.Attempt().GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Completed)
	assert.Nil(t, stored.Score)
	assert.Nil(t, stored.EndTime)
	assert.Empty(t, stored.Answers)
	assert.Empty(t, publisher.EventsOfType(events.EventAttemptCompleted))

	// Once the substrate recovers the same submission goes through.
	kv.failSaves = false
	submitted, err := svc.Submit(ctx, attempt.ID, answers, testStudent)
	require.NoError(t, err)
	assert.True(t, submitted.Completed)
	assert.Equal(t, 100, *submitted.Score)
}

func TestConcurrentSubmitFinalizesOnce(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	answers := []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}

	const submitters = 8
	results := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Submit(ctx, attempt.ID, answers, testStudent)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAttemptAlreadySubmitted):
			conflicts++
		default:
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, submitters-1, conflicts)

	completed := env.publisher.EventsOfType(events.EventAttemptCompleted)
	assert.Len(t, completed, 1)
}

func TestSubmitPublishesCompletedEvent(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	started := env.publisher.EventsOfType(events.EventAttemptStarted)
	require.Len(t, started, 1)

	_, err = env.svc.Submit(ctx, attempt.ID, []models.Answer{
		{QuestionID: "q1", Value: models.ChoiceValue(0)},
		{QuestionID: "q2", Value: models.BoolValue(true)},
	}, testStudent)
	require.NoError(t, err)

	completed := env.publisher.EventsOfType(events.EventAttemptCompleted)
	require.Len(t, completed, 1)
	payload, ok := completed[0].Data.(events.AttemptCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, attempt.ID, payload.AttemptID)
	assert.Equal(t, 100, payload.Score)
	assert.False(t, payload.AutoSubmit)
}

func TestAutoSubmitOnTimerExpiry(t *testing.T) {
	env := newAttemptTestEnv(t)
	env.svc.tick = time.Millisecond

	quiz := env.seedQuiz(t, true) // ten minute limit, 600 fast ticks
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	require.NoError(t, env.svc.RecordAnswer(ctx, attempt.ID, "q1", models.ChoiceValue(0), testStudent))

	require.Eventually(t, func() bool {
		stored, err := env.repo.Attempt().GetByID(ctx, attempt.ID)
		return err == nil && stored.Completed
	}, 5*time.Second, 5*time.Millisecond)

	stored, err := env.repo.Attempt().GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Score)
	// Only q1 answered correctly: round(100 * 5 / 8) = 63.
	assert.Equal(t, 63, *stored.Score)

	require.Eventually(t, func() bool {
		return len(env.publisher.EventsOfType(events.EventAttemptCompleted)) == 1
	}, time.Second, 5*time.Millisecond)
	completed := env.publisher.EventsOfType(events.EventAttemptCompleted)
	payload, ok := completed[0].Data.(events.AttemptCompletedEvent)
	require.True(t, ok)
	assert.True(t, payload.AutoSubmit)
}

func TestTimeRemaining(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	remaining, err := env.svc.TimeRemaining(ctx, attempt.ID, testStudent)
	require.NoError(t, err)
	assert.Equal(t, quiz.TimeLimit*60, remaining)

	_, err = env.svc.TimeRemaining(ctx, attempt.ID, testOtherStudent)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)

	// Teachers can observe any attempt's countdown.
	_, err = env.svc.TimeRemaining(ctx, attempt.ID, testTeacher)
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, attempt.ID, nil, testStudent)
	require.NoError(t, err)

	_, err = env.svc.TimeRemaining(ctx, attempt.ID, testStudent)
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestAttemptReadAccess(t *testing.T) {
	env := newAttemptTestEnv(t)
	quiz := env.seedQuiz(t, true)
	ctx := context.Background()

	attempt, err := env.svc.Start(ctx, quiz.ID, testStudent)
	require.NoError(t, err)

	_, err = env.svc.GetAttempt(ctx, attempt.ID, testOtherStudent)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)

	_, err = env.svc.GetAttempt(ctx, attempt.ID, testTeacher)
	require.NoError(t, err)

	_, err = env.svc.ListAttemptsByQuiz(ctx, quiz.ID, testStudent)
	assert.ErrorAs(t, err, &permErr)

	byQuiz, err := env.svc.ListAttemptsByQuiz(ctx, quiz.ID, testTeacher)
	require.NoError(t, err)
	assert.Len(t, byQuiz, 1)

	_, err = env.svc.ListAttemptsByStudent(ctx, testStudent.ID, testOtherStudent)
	assert.ErrorAs(t, err, &permErr)

	byStudent, err := env.svc.ListAttemptsByStudent(ctx, testStudent.ID, testStudent)
	require.NoError(t, err)
	assert.Len(t, byStudent, 1)
}
