package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/decode"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

// AnswersVersion is the envelope version written by Write.
const AnswersVersion = 1

var errUnsupportedVersion = errors.New("unsupported answers envelope version")

type answersEnvelope struct {
	Version int           `json:"version"`
	Answers model.Answers `json:"answers"`
}

// AnswerStore persists in-progress answers per exam.
type AnswerStore struct {
	kv   KV
	keys *config.CacheKeyStruct
	log  zerolog.Logger
}

func NewAnswerStore(kv KV, keys *config.CacheKeyStruct, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		kv:   kv,
		keys: keys,
		log:  log.With().Str("component", "answer_store").Logger(),
	}
}

// Load returns the saved answers restricted to known question ids. Missing,
// unreadable or foreign-version state yields an empty map.
func (s *AnswerStore) Load(ctx context.Context, examID string, known []string) model.Answers {
	out := make(model.Answers)

	raw, err := s.kv.Get(ctx, s.keys.ExamAnswersKey(examID))
	if errors.Is(err, ErrKeyNotFound) {
		return out
	}
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to read saved answers")
		return out
	}

	saved, err := decodeAnswers(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Ignoring saved answers")
		return out
	}

	allowed := make(map[string]struct{}, len(known))
	for _, id := range known {
		allowed[id] = struct{}{}
	}
	for id, v := range saved {
		if _, ok := allowed[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Write replaces the saved answers of an exam. Failures are logged and returned;
// callers keep going with their in-memory copy.
func (s *AnswerStore) Write(ctx context.Context, examID string, answers model.Answers) error {
	b, err := json.Marshal(answersEnvelope{Version: AnswersVersion, Answers: answers})
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	if err := s.kv.Set(ctx, s.keys.ExamAnswersKey(examID), b); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to persist answers")
		return err
	}
	return nil
}

// Clear drops the saved answers of an exam.
func (s *AnswerStore) Clear(ctx context.Context, examID string) error {
	if err := s.kv.Delete(ctx, s.keys.ExamAnswersKey(examID)); err != nil && !errors.Is(err, ErrKeyNotFound) {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Failed to clear saved answers")
		return err
	}
	return nil
}

// decodeAnswers accepts the versioned envelope and the legacy bare map.
func decodeAnswers(raw []byte) (model.Answers, error) {
	obj := decode.Object(raw)
	if obj == nil {
		return nil, errors.New("saved answers are not an object")
	}

	if version, hasVersion := obj["version"]; hasVersion {
		if inner := decode.Object(obj["answers"]); inner != nil {
			n, ok := decode.Number(version)
			if !ok || int(n) != AnswersVersion {
				return nil, fmt.Errorf("%w: %s", errUnsupportedVersion, version)
			}
			return decodeEntries(inner), nil
		}
	}
	return decodeEntries(obj), nil
}

// decodeEntries skips entries that are not null, string, bool or number.
func decodeEntries(obj map[string]json.RawMessage) model.Answers {
	out := make(model.Answers, len(obj))
	for id, raw := range obj {
		var v model.Value
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[id] = v
	}
	return out
}
