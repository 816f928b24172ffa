package models

import (
	"encoding/json"
	"time"
)

// Answer carries the raw submitted value for one question. The value decodes
// per the referenced question's type: an option index for multiple-choice, a
// boolean for true-false, a string for short-answer. IsCorrect and
// PointsAwarded stay nil until the attempt is finalized.
type Answer struct {
	QuestionID    string          `json:"question_id" validate:"required"`
	Value         json.RawMessage `json:"value"`
	IsCorrect     *bool           `json:"is_correct,omitempty"`
	PointsAwarded *float64        `json:"points_awarded,omitempty"`
}

// Attempt is one student's single run through a quiz.
// Invariant: Completed == (EndTime != nil && Score != nil).
type Attempt struct {
	ID        string     `json:"id"`
	QuizID    string     `json:"quiz_id"`
	StudentID string     `json:"student_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Answers   []Answer   `json:"answers"`
	Score     *int       `json:"score"` // 0-100, nil until finalized
	Completed bool       `json:"completed"`
}

// ChoiceValue encodes a multiple-choice option index as a submitted value.
func ChoiceValue(index int) json.RawMessage {
	raw, _ := json.Marshal(index)
	return raw
}

// BoolValue encodes a true-false answer as a submitted value.
func BoolValue(v bool) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

// TextValue encodes a short-answer string as a submitted value.
func TextValue(text string) json.RawMessage {
	raw, _ := json.Marshal(text)
	return raw
}
