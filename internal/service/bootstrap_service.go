package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/decode"
	"github.com/stemsi/exstem-exam-engine/internal/model"
	"github.com/stemsi/exstem-exam-engine/internal/normalizer"
	"github.com/stemsi/exstem-exam-engine/internal/timer"
)

// Backend is the part of the exam REST API a session needs.
type Backend interface {
	Submitter
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	RemainingTime(ctx context.Context, examID string) (json.RawMessage, error)
	StartExam(ctx context.Context, examID string) (*model.StartResult, error)
	BatchQuestions(ctx context.Context, ids []string) ([]json.RawMessage, error)
	GetQuestion(ctx context.Context, questionID string) (json.RawMessage, error)
	ListQuestions(ctx context.Context, page, limit int) ([]json.RawMessage, error)
}

// BootstrapConfig tunes the bootstrapper.
type BootstrapConfig struct {
	CatalogLimit     int
	FetchConcurrency int
	SubmitTimeout    time.Duration
	TrueFalseLabels  [2]string
}

// BootstrapService loads an exam and turns it into a running Session.
type BootstrapService struct {
	backend    Backend
	answers    AnswerPersister
	results    ResultSaver
	normalizer *normalizer.Normalizer
	reconciler *clock.Reconciler
	coercer    *Coercer
	clock      clock.Clock
	cfg        BootstrapConfig
	log        zerolog.Logger
}

// NewBootstrapService creates a new BootstrapService.
func NewBootstrapService(
	backend Backend,
	answers AnswerPersister,
	results ResultSaver,
	clk clock.Clock,
	cfg BootstrapConfig,
	log zerolog.Logger,
) *BootstrapService {
	if cfg.CatalogLimit <= 0 {
		cfg.CatalogLimit = 1000
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &BootstrapService{
		backend:    backend,
		answers:    answers,
		results:    results,
		normalizer: normalizer.New(cfg.TrueFalseLabels, log),
		reconciler: clock.NewReconciler(clk),
		coercer:    NewCoercer(cfg.TrueFalseLabels),
		clock:      clk,
		cfg:        cfg,
		log:        log.With().Str("component", "session_bootstrap").Logger(),
	}
}

// Bootstrap starts or resumes the attempt at examID. Either a fully built
// Session is returned or an error; nothing is left running on failure.
func (s *BootstrapService) Bootstrap(ctx context.Context, examID string) (*Session, error) {
	log := s.log.With().Str("exam_id", examID).Logger()

	exam, err := s.backend.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", translate(err))
	}
	if exam.ID == "" {
		exam.ID = examID
	}

	questions, err := s.loadQuestions(ctx, exam, log)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", translate(err))
	}

	owner := apiclient.CallerFrom(ctx)
	answers := mergeAnswers(questions, s.answers.Load(ctx, StorageID(owner, exam.ID), model.QuestionIDs(questions)))

	remaining, resumed, err := s.resolveRemaining(ctx, exam, log)
	if err != nil {
		return nil, err
	}

	sess := s.newSession(ctx, owner, exam, questions, answers, resumed)
	sess.start(remaining)

	log.Info().
		Int("questions", len(questions)).
		Int("remaining", remaining).
		Bool("resumed", resumed).
		Str("status", string(sess.State().Status)).
		Msg("Exam session ready")
	return sess, nil
}

// loadQuestions resolves embedded records, falling back to the catalog, and
// returns them normalized in exam order.
func (s *BootstrapService) loadQuestions(ctx context.Context, exam *model.Exam, log zerolog.Logger) ([]model.Question, error) {
	records := exam.Questions
	if len(records) == 0 {
		catalog, err := s.backend.ListQuestions(ctx, 1, s.cfg.CatalogLimit)
		if err != nil {
			return nil, err
		}
		records = filterByExam(catalog, exam.ID)
		log.Debug().Int("catalog", len(catalog)).Int("matched", len(records)).Msg("Questions taken from catalog")
	}

	full, ids := s.normalizer.Split(records)
	if len(ids) > 0 {
		resolved, err := s.resolveIDs(ctx, ids, log)
		if err != nil {
			return nil, err
		}
		full = append(full, resolved...)
	}

	questions := s.normalizer.Normalize(full)
	orderLike(questions, records)
	return questions, nil
}

// resolveIDs tries the batch endpoint first and then per-id fetches. Missing
// questions are skipped; an expired session aborts.
func (s *BootstrapService) resolveIDs(ctx context.Context, ids []string, log zerolog.Logger) ([]json.RawMessage, error) {
	batch, err := s.backend.BatchQuestions(ctx, ids)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return nil, err
	case err == nil && len(batch) > 0:
		return batch, nil
	}
	log.Debug().Err(err).Int("ids", len(ids)).Msg("Batch question fetch unavailable, fetching one by one")

	out := make([]json.RawMessage, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := s.backend.GetQuestion(gctx, id)
			if err != nil {
				if errors.Is(err, apiclient.ErrUnauthorized) {
					return err
				}
				log.Warn().Err(err).Str("question_id", id).Msg("Skipping unavailable question")
				return nil
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := out[:0]
	for _, rec := range out {
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// resolveRemaining decides resume versus fresh start.
func (s *BootstrapService) resolveRemaining(ctx context.Context, exam *model.Exam, log zerolog.Logger) (int, bool, error) {
	rem := clock.Unknown
	raw, err := s.backend.RemainingTime(ctx, exam.ID)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return 0, false, fmt.Errorf("remaining time: %w", translate(err))
	case err != nil:
		log.Warn().Err(err).Msg("Remaining time unavailable, starting attempt")
	default:
		rem = s.reconciler.Reconcile(raw)
	}

	if rem.Known {
		if rem.Expired() {
			log.Info().Msg("Attempt has no time left")
		}
		return rem.Seconds, true, nil
	}

	started, err := s.backend.StartExam(ctx, exam.ID)
	if err != nil {
		return 0, false, fmt.Errorf("start exam: %w", translate(err))
	}
	if started.EndTime != nil {
		return s.reconciler.FromEndTime(*started.EndTime).Seconds, false, nil
	}

	duration := exam.Duration()
	if started.Exam != nil && started.Exam.DurationMinutes > 0 {
		duration = started.Exam.Duration()
	}
	return int(duration / time.Second), false, nil
}

func (s *BootstrapService) newSession(ctx context.Context, owner string, exam *model.Exam, questions []model.Question, answers model.Answers, resumed bool) *Session {
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	sessLog := s.log.With().Str("component", "exam_session").Str("exam_id", exam.ID).Logger()
	// Automatic submissions outlive the request that bootstrapped the session
	// but keep its values, notably the caller's token.
	base := context.WithoutCancel(ctx)
	timeout := s.cfg.SubmitTimeout

	sess := &Session{
		exam:      exam,
		questions: questions,
		index:     index,
		owner:     owner,
		storeID:   StorageID(owner, exam.ID),
		store:     s.answers,
		clock:     s.clock,
		log:       sessLog,
		submitCtx: func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(base, timeout)
		},
		state: model.ExamSession{
			ExamID:         exam.ID,
			Status:         model.SessionStatusInitializing,
			IsResumed:      resumed,
			IdempotencyKey: uuid.NewString(),
		},
		answers: answers,
		subs:    make(map[int]chan Event),
	}
	sess.countdown = timer.New(s.clock, timer.Options{
		OnTick:   sess.onTick,
		OnExpire: sess.onExpire,
	})
	sess.coord = &SubmissionCoordinator{
		examID:    exam.ID,
		storeID:   sess.storeID,
		idemKey:   sess.state.IdempotencyKey,
		questions: questions,
		coercer:   s.coercer,
		backend:   s.backend,
		results:   s.results,
		clock:     s.clock,
		view:      sess,
		log:       sessLog,
	}
	return sess
}

// StorageID scopes the saved state of examID to owner. An empty owner keeps
// the bare exam id.
func StorageID(owner, examID string) string {
	if owner == "" {
		return examID
	}
	return owner + ":" + examID
}

// mergeAnswers seeds every question with its empty answer and overlays saved
// non-null values.
func mergeAnswers(questions []model.Question, saved model.Answers) model.Answers {
	out := make(model.Answers, len(questions))
	for _, q := range questions {
		out[q.ID] = q.EmptyAnswer()
		if v, ok := saved[q.ID]; ok && !v.IsNull() {
			out[q.ID] = v
		}
	}
	return out
}

// filterByExam keeps catalog records whose exam reference matches examID.
func filterByExam(catalog []json.RawMessage, examID string) []json.RawMessage {
	var out []json.RawMessage
	for _, rec := range catalog {
		ref, ok := decode.Member(rec, "exam", "examId")
		if !ok {
			continue
		}
		id, isString := decode.String(ref)
		if !isString {
			if obj := decode.Object(ref); obj != nil {
				id = decode.StringField(obj, "_id", "id")
			}
		}
		if id == examID {
			out = append(out, rec)
		}
	}
	return out
}

// orderLike sorts questions by the position of their id in records.
func orderLike(questions []model.Question, records []json.RawMessage) {
	pos := make(map[string]int, len(records))
	for i, rec := range records {
		id, ok := decode.String(rec)
		if !ok {
			if obj := decode.Object(decode.Descend(rec, "data")); obj != nil {
				id = decode.StringField(obj, "_id", "id")
			}
		}
		if _, seen := pos[id]; id != "" && !seen {
			pos[id] = i
		}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		pi, ok := pos[questions[i].ID]
		if !ok {
			pi = len(records)
		}
		pj, ok := pos[questions[j].ID]
		if !ok {
			pj = len(records)
		}
		return pi < pj
	})
}
