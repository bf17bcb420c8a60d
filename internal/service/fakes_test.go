package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/model"
	"github.com/stemsi/exstem-exam-engine/internal/service"
	"github.com/stemsi/exstem-exam-engine/internal/store"
)

// fakeBackend is an in-memory exam backend that records every call.
type fakeBackend struct {
	mu sync.Mutex

	exam    *model.Exam
	examErr error

	remaining    json.RawMessage
	remainingErr error

	start      *model.StartResult
	startErr   error
	startCalls int

	catalog   []json.RawMessage
	batch     []json.RawMessage
	batchErr  error
	byID      map[string]json.RawMessage
	getCalls  int
	listCalls int

	submitErrs   []error
	submitResult model.SubmitResult
	submitReqs   []model.SubmitRequest
	submitKeys   []string
	// submitGate, when set, blocks every submit until it is closed.
	submitGate chan struct{}
}

func (f *fakeBackend) GetExam(context.Context, string) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.examErr != nil {
		return nil, f.examErr
	}
	cp := *f.exam
	return &cp, nil
}

func (f *fakeBackend) RemainingTime(context.Context, string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining, f.remainingErr
}

func (f *fakeBackend) StartExam(context.Context, string) (*model.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.start == nil {
		return &model.StartResult{}, nil
	}
	return f.start, nil
}

func (f *fakeBackend) SubmitExam(_ context.Context, _ string, key string, req model.SubmitRequest) (model.SubmitResult, error) {
	f.mu.Lock()
	gate := f.submitGate
	f.submitReqs = append(f.submitReqs, req)
	f.submitKeys = append(f.submitKeys, key)
	var err error
	if len(f.submitErrs) > 0 {
		err = f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
	}
	res := f.submitResult
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeBackend) BatchQuestions(context.Context, []string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batch, f.batchErr
}

func (f *fakeBackend) GetQuestion(_ context.Context, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	rec, ok := f.byID[id]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	return rec, nil
}

func (f *fakeBackend) ListQuestions(context.Context, int, int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.catalog, nil
}

func (f *fakeBackend) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitReqs)
}

func (f *fakeBackend) lastSubmit() model.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitReqs[len(f.submitReqs)-1]
}

func (f *fakeBackend) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func rawList(t *testing.T, body string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return out
}

// fiveQuestionExam has two multiple choice, one true/false, one essay and one
// more multiple choice question.
func fiveQuestionExam(t *testing.T) *model.Exam {
	return &model.Exam{
		ID:              "e1",
		Title:           "Physics",
		DurationMinutes: 60,
		Questions: rawList(t, `[
			{"_id":"q1","text":"1+1","type":"multiple-choice","options":["1","2"],"correctAnswer":"2","points":1},
			{"_id":"q2","text":"2+2","type":"multiple-choice","options":["3","4"],"correctAnswer":"4","points":1},
			{"_id":"q3","text":"Light is a wave","type":"true-false","options":["صحيح","خطأ"],"correctAnswer":true,"points":1},
			{"_id":"q4","text":"Explain gravity","type":"essay","points":2},
			{"_id":"q5","text":"3+3","type":"multiple-choice","options":["6","7"],"correctAnswer":"6","points":1}
		]`),
	}
}

type harness struct {
	backend *fakeBackend
	clock   *clock.Manual
	kv      *store.MemoryKV
	answers *store.AnswerStore
	results *store.ResultStore
	boot    *service.BootstrapService
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	h := &harness{
		backend: backend,
		clock:   clock.NewManual(epoch),
		kv:      store.NewMemoryKV(),
	}
	h.answers = store.NewAnswerStore(h.kv, config.CacheKey, zerolog.Nop())
	h.results = store.NewResultStore(h.kv, config.CacheKey)
	h.boot = service.NewBootstrapService(backend, h.answers, h.results, h.clock, service.BootstrapConfig{
		FetchConcurrency: 2,
		SubmitTimeout:    time.Second,
	}, zerolog.Nop())
	return h
}

func (h *harness) bootstrap(t *testing.T) *service.Session {
	t.Helper()
	sess, err := h.boot.Bootstrap(context.Background(), "e1")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

// gatedKV holds Set on one key until release is closed and records the order
// of writes to that key.
type gatedKV struct {
	*store.MemoryKV
	key     string
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	ops   []string
	armed bool
}

func newGatedKV(key string) *gatedKV {
	return &gatedKV{
		MemoryKV: store.NewMemoryKV(),
		key:      key,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedKV) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	if key == g.key {
		g.mu.Lock()
		armed := g.armed
		g.armed = false
		g.mu.Unlock()
		if armed {
			close(g.entered)
			<-g.release
		}
		g.record("set")
	}
	return g.MemoryKV.Set(ctx, key, value)
}

func (g *gatedKV) Delete(ctx context.Context, key string) error {
	if key == g.key {
		g.record("delete")
	}
	return g.MemoryKV.Delete(ctx, key)
}

func (g *gatedKV) record(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, op)
}

func (g *gatedKV) history() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ops...)
}
