package model

import (
	"encoding/json"
	"math"
	"time"
)

// DefaultDurationMinutes is used when the exam payload carries no duration.
const DefaultDurationMinutes = 60

// MaxDurationMinutes keeps the duration in seconds within 32 bits.
const MaxDurationMinutes = math.MaxInt32 / 60

// Exam is the exam metadata returned by the backend.
// Questions holds raw records (objects or bare ids) for the normalizer.
type Exam struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	DurationMinutes int               `json:"duration"`
	Questions       []json.RawMessage `json:"questions"`
}

// Duration returns the exam duration, falling back to DefaultDurationMinutes.
func (e *Exam) Duration() time.Duration {
	minutes := e.DurationMinutes
	if minutes <= 0 {
		minutes = DefaultDurationMinutes
	}
	minutes = min(minutes, MaxDurationMinutes)
	return time.Duration(minutes) * time.Minute
}

// StartResult is the decoded response of start-exam.
type StartResult struct {
	EndTime *time.Time `json:"endTime,omitempty"`
	Exam    *Exam      `json:"exam,omitempty"`
}

// SubmittedAnswer is one entry of the submit payload.
type SubmittedAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer Value  `json:"selectedAnswer"`
}

// SubmitRequest is the payload sent to submit-exam.
type SubmitRequest struct {
	Answers []SubmittedAnswer `json:"answers"`
}

// SubmitResult is the score the backend reports after grading.
type SubmitResult struct {
	Score      float64 `json:"score"`
	TotalScore float64 `json:"totalScore"`
}
