package model

import (
	"time"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "INITIALIZING"
	SessionStatusActive       SessionStatus = "ACTIVE"
	SessionStatusExpiring     SessionStatus = "EXPIRING"
	SessionStatusSubmitting   SessionStatus = "SUBMITTING"
	SessionStatusCompleted    SessionStatus = "COMPLETED"
	SessionStatusFailed       SessionStatus = "FAILED"
)

// ExamSession is the observable state of one exam attempt.
type ExamSession struct {
	ExamID           string        `json:"exam_id"`
	Status           SessionStatus `json:"status"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Deadline         time.Time     `json:"deadline"`
	IsResumed        bool          `json:"is_resumed"`
	IdempotencyKey   string        `json:"-"`
}

// ExamResultSnapshot is the locally persisted outcome of a successful submission.
type ExamResultSnapshot struct {
	Score       float64   `json:"score"`
	TotalScore  float64   `json:"totalScore"`
	Percentage  int       `json:"percentage"`
	CompletedAt time.Time `json:"completedAt"`
}
