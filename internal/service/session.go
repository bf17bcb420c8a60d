package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/model"
	"github.com/stemsi/exstem-exam-engine/internal/timer"
)

// EventType names a session event pushed to subscribers.
type EventType string

const (
	EventTick         EventType = "tick"
	EventExpired      EventType = "expired"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
)

// Event is one state change of a session.
type Event struct {
	Type      EventType
	Remaining int
	Result    *model.ExamResultSnapshot
	Err       *SubmitError
}

// subscriberBuffer bounds each subscriber's queue. Slow subscribers lose
// events instead of stalling the countdown.
const subscriberBuffer = 16

// Session is the controller of one live exam attempt. It owns the state, the
// in-memory answers, the countdown and the submission coordinator.
type Session struct {
	exam      *model.Exam
	questions []model.Question
	index     map[string]int

	// owner is the caller that bootstrapped the attempt; storeID scopes its
	// saved answers to that caller.
	owner   string
	storeID string

	store     AnswerPersister
	countdown *timer.Countdown
	coord     *SubmissionCoordinator
	clock     clock.Clock
	log       zerolog.Logger

	// submitCtx builds the context of an automatic submission.
	submitCtx func() (context.Context, context.CancelFunc)

	// writeMu orders answer writes so the store never goes backwards.
	writeMu sync.Mutex

	mu      sync.Mutex
	state   model.ExamSession
	answers model.Answers
	result  *model.ExamResultSnapshot
	lastErr *SubmitError
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// SessionView is a consistent copy of a session for presentation.
type SessionView struct {
	Session   model.ExamSession         `json:"session"`
	Exam      ExamInfo                  `json:"exam"`
	Questions []model.Question          `json:"questions"`
	Answers   model.Answers             `json:"answers"`
	Result    *model.ExamResultSnapshot `json:"result,omitempty"`
	LastError string                    `json:"last_error,omitempty"`
}

// ExamInfo is the exam metadata shown alongside a session.
type ExamInfo struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration"`
}

// ExamID returns the exam this session belongs to.
func (s *Session) ExamID() string { return s.exam.ID }

// State returns the current session state.
func (s *Session) State() model.ExamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns state, questions and answers in one consistent copy.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		Session: s.state,
		Exam: ExamInfo{
			ID:              s.exam.ID,
			Title:           s.exam.Title,
			Description:     s.exam.Description,
			DurationMinutes: int(s.exam.Duration() / time.Minute),
		},
		Questions: s.questions,
		Answers:   s.answers.Clone(),
		Result:    s.result,
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Message
	}
	return v
}

// OwnedBy reports whether caller bootstrapped this session.
func (s *Session) OwnedBy(caller string) bool { return s.owner == caller }

// Questions returns the normalized questions in exam order.
func (s *Session) Questions() []model.Question { return s.questions }

// Answers returns a copy of the current answers.
func (s *Session) Answers() model.Answers { return s.answersSnapshot() }

// SetAnswer records an answer and persists the full answer set.
func (s *Session) SetAnswer(ctx context.Context, questionID string, v model.Value) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, ok := s.index[questionID]; !ok {
		s.mu.Unlock()
		return ErrUnknownQuestion
	}
	if s.state.Status != model.SessionStatusActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	s.answers[questionID] = v
	snapshot := s.answers.Clone()
	s.mu.Unlock()

	// Store failures are logged by the store; the attempt continues in memory.
	_ = s.store.Write(ctx, s.storeID, snapshot)
	return nil
}

// Submit finalizes the attempt. See SubmissionCoordinator.Submit.
func (s *Session) Submit(ctx context.Context, trigger Trigger, confirm Confirmer) (*model.ExamResultSnapshot, error) {
	return s.coord.Submit(ctx, trigger, confirm)
}

// Retry re-sends a failed submission.
func (s *Session) Retry(ctx context.Context) (*model.ExamResultSnapshot, error) {
	return s.coord.Retry(ctx)
}

// Subscribe returns a channel of session events and a func that ends the
// subscription. The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close stops the countdown and ends every subscription. Safe to call twice.
func (s *Session) Close() {
	s.countdown.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.log.Debug().Msg("Session closed")
}

// start arms the countdown. Zero seconds means the attempt is already over.
func (s *Session) start(remaining int) {
	s.mu.Lock()
	s.state.RemainingSeconds = remaining
	s.state.Deadline = s.clock.Now().Add(time.Duration(remaining) * time.Second)
	if remaining == 0 {
		s.state.Status = model.SessionStatusExpiring
	} else {
		s.state.Status = model.SessionStatusActive
	}
	s.mu.Unlock()

	if err := s.countdown.Start(remaining); err != nil {
		s.mu.Lock()
		s.state.Status = model.SessionStatusFailed
		s.mu.Unlock()
		s.log.Error().Err(err).Int("remaining", remaining).Msg("Failed to start countdown")
	}
}

func (s *Session) onTick(remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RemainingSeconds = remaining
	s.broadcast(Event{Type: EventTick, Remaining: remaining})
}

// onExpire runs on the tick goroutine; the submission must not.
func (s *Session) onExpire() {
	s.mu.Lock()
	if s.state.Status == model.SessionStatusActive {
		s.state.Status = model.SessionStatusExpiring
	}
	s.broadcast(Event{Type: EventExpired})
	s.mu.Unlock()

	s.log.Info().Msg("Time expired, submitting automatically")
	go s.autoSubmit()
}

func (s *Session) autoSubmit() {
	ctx, cancel := s.submitCtx()
	defer cancel()

	if _, err := s.coord.Submit(ctx, TriggerAuto, nil); err != nil {
		s.log.Warn().Err(err).Msg("Automatic submission did not complete")
	}
}

// broadcast must be called with mu held.
func (s *Session) broadcast(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// submissionView implementation.

func (s *Session) timerExpired() bool {
	return s.countdown.State() == timer.Expired
}

func (s *Session) answersSnapshot() model.Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

func (s *Session) beginSubmit(trigger Trigger) {
	s.countdown.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = model.SessionStatusSubmitting
	s.log.Info().Str("trigger", string(trigger)).Msg("Submitting exam")
}

// clearAnswers waits out any answer write still in flight.
func (s *Session) clearAnswers(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.store.Clear(ctx, s.storeID)
}

func (s *Session) completeSubmit(snap model.ExamResultSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = model.SessionStatusCompleted
	s.result = &snap
	s.lastErr = nil
	s.broadcast(Event{Type: EventSubmitted, Result: &snap})
}

func (s *Session) failSubmit(err *SubmitError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Status stays Submitting; only Retry moves it on.
	s.lastErr = err
	s.broadcast(Event{Type: EventSubmitFailed, Err: err})
}
