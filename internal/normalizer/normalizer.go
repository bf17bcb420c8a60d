// Package normalizer maps heterogeneous backend question records into
// model.Question values.
package normalizer

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-engine/internal/decode"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

// DefaultTrueFalseLabels are the options synthesized for true/false questions
// that arrive without an option list.
var DefaultTrueFalseLabels = [2]string{"True", "False"}

// Normalizer converts raw question records. It performs no I/O.
type Normalizer struct {
	trueFalse [2]string
	log       zerolog.Logger
}

// New creates a Normalizer. A zero labels value selects DefaultTrueFalseLabels.
func New(labels [2]string, log zerolog.Logger) *Normalizer {
	if labels[0] == "" || labels[1] == "" {
		labels = DefaultTrueFalseLabels
	}
	return &Normalizer{
		trueFalse: labels,
		log:       log.With().Str("component", "question_normalizer").Logger(),
	}
}

// Split separates complete question records from bare id references.
// Referenced ids are de-duplicated in first-seen order.
func (n *Normalizer) Split(records []json.RawMessage) (full []json.RawMessage, ids []string) {
	seen := make(map[string]struct{})
	addID := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, raw := range records {
		if s, ok := decode.String(raw); ok {
			addID(s)
			continue
		}
		obj := decode.Object(raw)
		if obj == nil {
			n.log.Debug().RawJSON("record", raw).Msg("Skipping malformed question reference")
			continue
		}
		if decode.StringField(obj, "text", "title") != "" {
			full = append(full, raw)
			continue
		}
		addID(decode.StringField(obj, "_id", "id"))
	}
	return full, ids
}

// Normalize converts each record, skipping the malformed ones.
func (n *Normalizer) Normalize(records []json.RawMessage) []model.Question {
	out := make([]model.Question, 0, len(records))
	for _, raw := range records {
		q, ok := n.normalizeOne(raw)
		if !ok {
			n.log.Debug().RawJSON("record", raw).Msg("Skipping malformed question")
			continue
		}
		out = append(out, q)
	}
	return out
}

func (n *Normalizer) normalizeOne(raw json.RawMessage) (model.Question, bool) {
	obj := decode.Object(decode.Descend(raw, "data"))
	if obj == nil {
		return model.Question{}, false
	}

	id := decode.StringField(obj, "_id", "id")
	if id == "" {
		return model.Question{}, false
	}

	rawType := ""
	if v, ok := obj["type"]; ok {
		rawType, _ = decode.String(v)
	}
	qType := MapType(rawType)

	points := 1
	if v, ok := obj["points"]; ok {
		if p, ok := decode.Number(v); ok && p >= 1 {
			points = decode.Int(p)
		}
	}

	var correct model.Value
	if v, ok := obj["correctAnswer"]; ok {
		if err := json.Unmarshal(v, &correct); err != nil {
			correct = model.Null()
		}
	}

	return model.Question{
		ID:            id,
		Text:          decode.StringField(obj, "text", "title"),
		Type:          qType,
		Options:       n.options(qType, obj, rawType),
		CorrectAnswer: correct,
		Points:        points,
	}, true
}

func (n *Normalizer) options(qType model.QuestionType, obj map[string]json.RawMessage, rawType string) []string {
	if qType != model.QuestionTypeMultipleChoice {
		return []string{}
	}
	if opts := stringList(obj, "options", "choices"); len(opts) > 0 {
		return opts
	}
	if isTrueFalse(canonical(rawType)) {
		return []string{n.trueFalse[0], n.trueFalse[1]}
	}
	return []string{}
}

// MapType maps a backend type string onto the normalized question type.
// Multiple-choice and true/false variants, and anything unrecognized, are
// multiple choice.
func MapType(raw string) model.QuestionType {
	switch canonical(raw) {
	case "short-answer", "essay":
		return model.QuestionTypeEssay
	}
	return model.QuestionTypeMultipleChoice
}

func canonical(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("_", "-", " ", "-").Replace(v)
}

func isTrueFalse(v string) bool {
	switch v {
	case "true-false", "truefalse", "true/false", "boolean":
		return true
	}
	return false
}

func stringList(obj map[string]json.RawMessage, keys ...string) []string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || !decode.IsArray(v) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := optionText(item); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// optionText accepts plain strings and {"text": ...} option objects.
func optionText(raw json.RawMessage) (string, bool) {
	if s, ok := decode.String(raw); ok {
		return s, true
	}
	if obj := decode.Object(raw); obj != nil {
		if s := decode.StringField(obj, "text", "label", "value"); s != "" {
			return s, true
		}
	}
	return "", false
}
