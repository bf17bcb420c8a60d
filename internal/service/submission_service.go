package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

// Trigger identifies what started a submission.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// Confirmer is asked whether to submit with unanswered questions left.
// Returning false cancels the submission.
type Confirmer func(unanswered int) bool

// ConfirmAlways is a Confirmer for callers that already asked the student.
func ConfirmAlways(int) bool { return true }

// Submitter sends final answers to the backend.
type Submitter interface {
	SubmitExam(ctx context.Context, examID, idemKey string, req model.SubmitRequest) (model.SubmitResult, error)
}

// AnswerPersister is the durable answer cache used by sessions.
type AnswerPersister interface {
	Load(ctx context.Context, examID string, known []string) model.Answers
	Write(ctx context.Context, examID string, answers model.Answers) error
	Clear(ctx context.Context, examID string) error
}

// ResultSaver keeps result snapshots after a successful submission.
type ResultSaver interface {
	Save(ctx context.Context, examID string, snap model.ExamResultSnapshot) error
}

// submissionView is what the coordinator needs from its session.
type submissionView interface {
	timerExpired() bool
	answersSnapshot() model.Answers
	beginSubmit(trigger Trigger)
	clearAnswers(ctx context.Context) error
	completeSubmit(snap model.ExamResultSnapshot)
	failSubmit(err *SubmitError)
}

type submitPhase int

const (
	phaseIdle submitPhase = iota
	phaseInFlight
	phaseFailed
	phaseDone
)

// SubmissionCoordinator performs at most one successful submit call per session.
type SubmissionCoordinator struct {
	examID    string
	storeID   string
	idemKey   string
	questions []model.Question
	coercer   *Coercer

	backend Submitter
	results ResultSaver
	clock   clock.Clock
	view    submissionView
	log     zerolog.Logger

	mu      sync.Mutex
	phase   submitPhase
	trigger Trigger
}

// Submit finalizes the attempt. Manual submits are refused once time is up and
// go through confirm when questions are unanswered; a nil confirm turns that
// case into an *UnansweredError.
func (c *SubmissionCoordinator) Submit(ctx context.Context, trigger Trigger, confirm Confirmer) (*model.ExamResultSnapshot, error) {
	if err := c.precheck(trigger); err != nil {
		return nil, err
	}

	if trigger == TriggerManual {
		if n := CountUnanswered(c.questions, c.view.answersSnapshot()); n > 0 {
			if confirm == nil {
				return nil, &UnansweredError{Count: n}
			}
			if !confirm(n) {
				c.log.Info().Int("unanswered", n).Msg("Manual submission declined")
				return nil, ErrSubmissionDeclined
			}
		}
	}

	// The confirmation ran unlocked; whatever happened meanwhile wins.
	c.mu.Lock()
	if err := c.phaseErr(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if trigger == TriggerManual && c.view.timerExpired() {
		c.mu.Unlock()
		return nil, ErrAlreadyExpired
	}
	c.phase = phaseInFlight
	c.trigger = trigger
	c.mu.Unlock()

	c.view.beginSubmit(trigger)
	return c.send(ctx)
}

// Retry re-sends a submission whose previous call failed.
func (c *SubmissionCoordinator) Retry(ctx context.Context) (*model.ExamResultSnapshot, error) {
	c.mu.Lock()
	if c.phase != phaseFailed {
		err := c.phaseErr()
		c.mu.Unlock()
		if err == nil {
			err = ErrNoFailedSubmission
		}
		return nil, err
	}
	c.phase = phaseInFlight
	c.mu.Unlock()

	c.log.Info().Str("trigger", string(c.trigger)).Msg("Retrying failed submission")
	return c.send(ctx)
}

func (c *SubmissionCoordinator) precheck(trigger Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.phaseErr(); err != nil {
		return err
	}
	if trigger == TriggerManual && c.view.timerExpired() {
		return ErrAlreadyExpired
	}
	return nil
}

// phaseErr must be called with mu held.
func (c *SubmissionCoordinator) phaseErr() error {
	switch c.phase {
	case phaseDone:
		return ErrAlreadySubmitted
	case phaseInFlight, phaseFailed:
		return ErrSubmissionInProgress
	default:
		return nil
	}
}

func (c *SubmissionCoordinator) send(ctx context.Context) (*model.ExamResultSnapshot, error) {
	req := c.coercer.BuildPayload(c.questions, c.view.answersSnapshot())

	res, err := c.backend.SubmitExam(ctx, c.examID, c.idemKey, req)
	if err != nil {
		serr := newSubmitError(err)
		c.mu.Lock()
		c.phase = phaseFailed
		c.mu.Unlock()

		c.log.Error().Err(err).Int("answers", len(req.Answers)).Msg("Exam submission failed")
		c.view.failSubmit(serr)
		return nil, serr
	}

	snap := Snapshot(res, c.clock.Now())
	if err := c.results.Save(ctx, c.storeID, snap); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist result snapshot")
	}
	// Failures are logged by the store.
	_ = c.view.clearAnswers(ctx)

	c.mu.Lock()
	c.phase = phaseDone
	c.mu.Unlock()

	c.log.Info().
		Float64("score", snap.Score).
		Float64("total", snap.TotalScore).
		Int("answers", len(req.Answers)).
		Msg("Exam submitted")
	c.view.completeSubmit(snap)
	return &snap, nil
}

// Snapshot turns a graded submit response into a result snapshot.
// Percentage is 0 when the total is not positive.
func Snapshot(res model.SubmitResult, now time.Time) model.ExamResultSnapshot {
	pct := 0
	if res.TotalScore > 0 {
		pct = int(math.Round(res.Score / res.TotalScore * 100))
	}
	return model.ExamResultSnapshot{
		Score:       res.Score,
		TotalScore:  res.TotalScore,
		Percentage:  pct,
		CompletedAt: now.UTC(),
	}
}

// CountUnanswered counts questions with a null or empty answer.
func CountUnanswered(questions []model.Question, answers model.Answers) int {
	n := 0
	for _, q := range questions {
		if v, ok := answers[q.ID]; !ok || v.IsEmpty() {
			n++
		}
	}
	return n
}

// Coercer builds submit payloads, turning true/false labels into booleans
// when the answer key is boolean.
type Coercer struct {
	pairs      [][2]string
	trueWords  map[string]struct{}
	falseWords map[string]struct{}
}

// NewCoercer recognizes the built-in true/false label pairs plus labels.
func NewCoercer(labels [2]string) *Coercer {
	c := &Coercer{
		pairs:      [][2]string{{"true", "false"}, {"صحيح", "خطأ"}},
		trueWords:  set("true", "صحيح", "صح", "yes", "1"),
		falseWords: set("false", "خطأ", "غلط", "no", "0"),
	}
	t, f := fold(labels[0]), fold(labels[1])
	if t != "" && f != "" {
		c.pairs = append(c.pairs, [2]string{t, f})
		c.trueWords[t] = struct{}{}
		c.falseWords[f] = struct{}{}
	}
	return c
}

// BuildPayload drops empty answers and keeps question order.
func (c *Coercer) BuildPayload(questions []model.Question, answers model.Answers) model.SubmitRequest {
	out := make([]model.SubmittedAnswer, 0, len(questions))
	for _, q := range questions {
		v, ok := answers[q.ID]
		if !ok || v.IsEmpty() {
			continue
		}
		out = append(out, model.SubmittedAnswer{QuestionID: q.ID, SelectedAnswer: c.Coerce(q, v)})
	}
	return model.SubmitRequest{Answers: out}
}

// Coerce converts a selected true/false label to a boolean for questions whose
// answer key is boolean. Anything else is returned unchanged.
func (c *Coercer) Coerce(q model.Question, v model.Value) model.Value {
	if q.CorrectAnswer.Kind != model.KindBool || v.Kind != model.KindString || !c.IsTrueFalse(q) {
		return v
	}
	w := fold(v.Str)
	if _, ok := c.trueWords[w]; ok {
		return model.Bool(true)
	}
	if _, ok := c.falseWords[w]; ok {
		return model.Bool(false)
	}
	return v
}

// IsTrueFalse reports whether q has exactly two options forming a known
// true/false label pair.
func (c *Coercer) IsTrueFalse(q model.Question) bool {
	if len(q.Options) != 2 {
		return false
	}
	a, b := fold(q.Options[0]), fold(q.Options[1])
	for _, p := range c.pairs {
		if (a == p[0] && b == p[1]) || (a == p[1] && b == p[0]) {
			return true
		}
	}
	return false
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
