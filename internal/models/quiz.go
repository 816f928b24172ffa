package models

import (
	"fmt"
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	ShortAnswer    QuestionType = "short-answer"
)

// Question is a tagged variant: all types share {ID, Text, Points} and
// diverge on the answer payload selected by Type.
type Question struct {
	ID     string       `json:"id"`
	Text   string       `json:"text" validate:"required,min=1"`
	Type   QuestionType `json:"type" validate:"required,question_type"`
	Points float64      `json:"points" validate:"required,gt=0"`

	// multiple-choice payload
	Options      []string `json:"options,omitempty"`
	CorrectIndex *int     `json:"correct_index,omitempty"`

	// true-false payload
	CorrectBool *bool `json:"correct_bool,omitempty"`

	// short-answer payload
	CorrectText *string `json:"correct_text,omitempty"`
}

// ValidatePayload checks that the type-specific payload matches the type tag.
// The switch is exhaustive over the closed QuestionType set; unknown tags fail.
func (q *Question) ValidatePayload() error {
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("question %s: multiple-choice requires at least 2 options", q.ID)
		}
		if q.CorrectIndex == nil || *q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %s: correct_index must be a valid option index", q.ID)
		}
	case TrueFalse:
		if q.CorrectBool == nil {
			return fmt.Errorf("question %s: true-false requires correct_bool", q.ID)
		}
	case ShortAnswer:
		if q.CorrectText == nil || *q.CorrectText == "" {
			return fmt.Errorf("question %s: short-answer requires a non-empty correct_text", q.ID)
		}
	default:
		return fmt.Errorf("question %s: unknown question type %q", q.ID, q.Type)
	}
	return nil
}

type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=1000"`
	TeacherID   string     `json:"teacher_id"`
	TimeLimit   int        `json:"time_limit" validate:"required,min=1"` // minutes
	Questions   []Question `json:"questions"`
	Published   bool       `json:"published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TotalPoints sums the point value of every question, answered or not. It is
// the grading denominator.
func (q *Quiz) TotalPoints() float64 {
	var total float64
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// QuestionByID resolves a question reference within the quiz.
func (q *Quiz) QuestionByID(id string) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i], true
		}
	}
	return nil, false
}
