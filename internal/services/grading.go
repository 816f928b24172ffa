package services

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/classlight/quiz-service/internal/models"
)

// Grade resolves every submitted answer against the quiz definition and
// computes the aggregate score. It is pure: no stored state, no side effects,
// identical inputs always yield identical outputs, and the submission order
// of answers never changes the score.
//
// Scoring: score = round(100 * earned / total), where total sums the points
// of EVERY question in the quiz. Unanswered questions therefore count fully
// against the score; answers referencing unknown question ids grade as
// incorrect without inflating the denominator. A quiz whose questions sum to
// zero points has no defined ratio and fails with ErrInvalidQuizState.
func Grade(quiz *models.Quiz, submitted []models.Answer) ([]models.Answer, int, error) {
	total := quiz.TotalPoints()
	if total <= 0 {
		return nil, 0, ErrInvalidQuizState
	}

	// An attempt holds at most one answer per question; on duplicates the
	// last submitted value wins, at the position of the first occurrence.
	graded := make([]models.Answer, 0, len(submitted))
	position := make(map[string]int, len(submitted))
	for _, answer := range submitted {
		if i, seen := position[answer.QuestionID]; seen {
			graded[i].Value = answer.Value
			continue
		}
		position[answer.QuestionID] = len(graded)
		graded = append(graded, models.Answer{QuestionID: answer.QuestionID, Value: answer.Value})
	}

	var earned float64
	for i := range graded {
		question, ok := quiz.QuestionByID(graded[i].QuestionID)
		correct := ok && isCorrect(question, graded[i].Value)

		var awarded float64
		if correct {
			awarded = question.Points
			earned += awarded
		}
		graded[i].IsCorrect = &correct
		graded[i].PointsAwarded = &awarded
	}

	score := int(math.Round(100 * earned / total))
	return graded, score, nil
}

// isCorrect dispatches on the question's type tag. Values that fail to decode
// as the expected shape grade as incorrect rather than erroring the whole
// submission.
func isCorrect(question *models.Question, value json.RawMessage) bool {
	if len(value) == 0 {
		return false
	}
	switch question.Type {
	case models.MultipleChoice:
		var index int
		if err := json.Unmarshal(value, &index); err != nil {
			return false
		}
		return question.CorrectIndex != nil && index == *question.CorrectIndex
	case models.TrueFalse:
		var answer bool
		if err := json.Unmarshal(value, &answer); err != nil {
			return false
		}
		return question.CorrectBool != nil && answer == *question.CorrectBool
	case models.ShortAnswer:
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return false
		}
		// Case-insensitive, but deliberately not trimmed: " Paris " does not
		// match "Paris".
		return question.CorrectText != nil &&
			strings.ToLower(text) == strings.ToLower(*question.CorrectText)
	default:
		return false
	}
}
