package websocket

import "github.com/stemsi/exstem-exam-engine/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records one answer.
type AnswerRequest struct {
	Action     Action      `json:"action"`
	QuestionID string      `json:"question_id"`
	Value      model.Value `json:"value"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action            Action `json:"action"`
	ConfirmUnanswered bool   `json:"confirm_unanswered"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventExpired      Event = "expired"
	EventSaved        Event = "saved"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse is sent once after the upgrade.
type StateResponse struct {
	Event   Event             `json:"event"`
	Session model.ExamSession `json:"session"`
}

type TickResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type SubmittedResponse struct {
	Event  Event                     `json:"event"`
	Result *model.ExamResultSnapshot `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// PlainResponse carries events without a payload (expired, pong).
type PlainResponse struct {
	Event Event `json:"event"`
}
