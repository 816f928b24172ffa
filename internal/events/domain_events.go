package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of domain events
type EventType string

const (
	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptCompleted EventType = "attempt.completed"

	// Quiz events
	EventQuizPublished EventType = "quiz.published"
	EventQuizDeleted   EventType = "quiz.deleted"
)

// DomainEvent is the base structure for all published events
type DomainEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`
}

// Attempt event payloads

type AttemptStartedEvent struct {
	AttemptID string    `json:"attempt_id"`
	QuizID    string    `json:"quiz_id"`
	QuizTitle string    `json:"quiz_title"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
	TimeLimit int       `json:"time_limit"` // minutes
}

type AttemptCompletedEvent struct {
	AttemptID   string    `json:"attempt_id"`
	QuizID      string    `json:"quiz_id"`
	QuizTitle   string    `json:"quiz_title"`
	StudentID   string    `json:"student_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
	AutoSubmit  bool      `json:"auto_submit"` // true when the timer expired
}

// Quiz event payloads

type QuizPublishedEvent struct {
	QuizID    string `json:"quiz_id"`
	QuizTitle string `json:"quiz_title"`
	TeacherID string `json:"teacher_id"`
}

type QuizDeletedEvent struct {
	QuizID          string `json:"quiz_id"`
	TeacherID       string `json:"teacher_id"`
	AttemptsRemoved int    `json:"attempts_removed"`
}

// NewDomainEvent wraps a payload in the event envelope.
func NewDomainEvent(eventType EventType, data interface{}) *DomainEvent {
	return &DomainEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "quiz-service",
		Data:      data,
	}
}
