package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/stemsi/exstem-exam-engine/internal/decode"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

// IdempotencyHeader carries the per-session key on every submit attempt.
const IdempotencyHeader = "Idempotency-Key"

// GetExam fetches exam metadata and its embedded question records.
func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	raw, err := c.get(ctx, "/exam/get/"+url.PathEscape(examID))
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", examID, err)
	}
	exam, ok := decodeExam(decode.Descend(raw, "data", "exam"))
	if !ok {
		return nil, fmt.Errorf("get exam %s: %w", examID, ErrNotFound)
	}
	if exam.ID == "" {
		exam.ID = examID
	}
	return exam, nil
}

// RemainingTime returns the raw remaining-time payload. The legacy path is
// tried when the primary one fails for any reason other than an expired session.
func (c *Client) RemainingTime(ctx context.Context, examID string) (json.RawMessage, error) {
	id := url.PathEscape(examID)
	raw, err := c.get(ctx, "/studentExam/exams/remaining-time/"+id)
	if err == nil {
		return raw, nil
	}
	if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
		return nil, fmt.Errorf("remaining time %s: %w", examID, err)
	}

	c.log.Debug().Err(err).Str("exam_id", examID).Msg("Primary remaining-time endpoint failed, trying legacy path")
	raw, err = c.get(ctx, "/studentExam/remaining-time/"+id)
	if err != nil {
		return nil, fmt.Errorf("remaining time %s: %w", examID, err)
	}
	return raw, nil
}

// StartExam begins a fresh attempt.
func (c *Client) StartExam(ctx context.Context, examID string) (*model.StartResult, error) {
	raw, err := c.post(ctx, "/studentExam/start/"+url.PathEscape(examID), struct{}{}, nil)
	if err != nil {
		return nil, fmt.Errorf("start exam %s: %w", examID, err)
	}

	body := decode.Descend(raw, "data")
	out := &model.StartResult{}
	if v, ok := decode.Member(body, "endTime", "end_time"); ok {
		if t, ok := parseTime(v); ok {
			out.EndTime = &t
		}
	}
	if v, ok := decode.Member(body, "exam"); ok {
		if exam, ok := decodeExam(v); ok {
			out.Exam = exam
		}
	}
	return out, nil
}

// SubmitExam sends the final answers once. idemKey is forwarded so the backend
// can deduplicate a manual retry.
func (c *Client) SubmitExam(ctx context.Context, examID, idemKey string, req model.SubmitRequest) (model.SubmitResult, error) {
	header := http.Header{}
	if idemKey != "" {
		header.Set(IdempotencyHeader, idemKey)
	}
	raw, err := c.post(ctx, "/studentExam/submit/"+url.PathEscape(examID), req, header)
	if err != nil {
		return model.SubmitResult{}, fmt.Errorf("submit exam %s: %w", examID, err)
	}
	return DecodeSubmitResult(raw), nil
}

// BatchQuestions resolves question ids in one call.
func (c *Client) BatchQuestions(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	raw, err := c.post(ctx, "/question/batch", map[string][]string{"ids": ids}, nil)
	if err != nil {
		return nil, fmt.Errorf("batch questions: %w", err)
	}
	records, _ := decode.Array(decode.Descend(raw, "data"), "questions", "data")
	return records, nil
}

// GetQuestion fetches a single question record.
func (c *Client) GetQuestion(ctx context.Context, questionID string) (json.RawMessage, error) {
	raw, err := c.get(ctx, "/question/get/"+url.PathEscape(questionID))
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", questionID, err)
	}
	if decode.IsNull(raw) {
		return nil, fmt.Errorf("get question %s: %w", questionID, ErrNotFound)
	}
	return decode.Descend(raw, "data", "question"), nil
}

// ListQuestions fetches one catalog page.
func (c *Client) ListQuestions(ctx context.Context, page, limit int) ([]json.RawMessage, error) {
	path := fmt.Sprintf("/question?page=%d&limit=%d", page, limit)
	raw, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	records, _ := decode.Array(decode.Descend(raw, "data"), "questions", "data")
	return records, nil
}

// ScoreShapes lists where a submit response may carry the score, in priority order.
var ScoreShapes = []decode.Extractor[float64]{
	{Name: "score", Extract: numberAt("score")},
	{Name: "data.score", Extract: numberAt("data", "score")},
}

// TotalShapes lists where a submit response may carry the total, in priority order.
var TotalShapes = []decode.Extractor[float64]{
	{Name: "totalPoints", Extract: numberAt("totalPoints")},
	{Name: "totalScore", Extract: numberAt("totalScore")},
	{Name: "data.totalPoints", Extract: numberAt("data", "totalPoints")},
	{Name: "data.totalScore", Extract: numberAt("data", "totalScore")},
}

// DefaultTotalScore is assumed when the backend reports no total.
const DefaultTotalScore = 100

// DecodeSubmitResult reads score and total from a submit response.
func DecodeSubmitResult(raw json.RawMessage) model.SubmitResult {
	score, _, ok := decode.First(raw, ScoreShapes)
	if !ok {
		score = 0
	}
	total, _, ok := decode.First(raw, TotalShapes)
	if !ok {
		total = DefaultTotalScore
	}
	return model.SubmitResult{Score: score, TotalScore: total}
}

// numberAt reads the number at a fixed path of object members.
func numberAt(path ...string) func(json.RawMessage) (float64, bool) {
	return func(raw json.RawMessage) (float64, bool) {
		cur := raw
		for _, k := range path[:len(path)-1] {
			next, ok := decode.Member(cur, k)
			if !ok {
				return 0, false
			}
			cur = next
		}
		return decode.NumberField(cur, path[len(path)-1])
	}
}

func decodeExam(raw json.RawMessage) (*model.Exam, bool) {
	obj := decode.Object(raw)
	if obj == nil {
		return nil, false
	}
	exam := &model.Exam{
		ID:          decode.StringField(obj, "_id", "id"),
		Title:       decode.StringField(obj, "title", "name"),
		Description: decode.StringField(obj, "description"),
	}
	if d, ok := decode.NumberField(raw, "duration", "durationMinutes"); ok && d > 0 {
		exam.DurationMinutes = min(decode.Int(math.Round(d)), model.MaxDurationMinutes)
	}
	if qs, ok := decode.Array(raw, "questions"); ok {
		exam.Questions = qs
	}
	return exam, true
}

// maxEpochMillis is 10000-01-01T00:00:00Z.
const maxEpochMillis = 253402300800000

// parseTime accepts ISO 8601 strings and epoch milliseconds.
func parseTime(raw json.RawMessage) (time.Time, bool) {
	if s, ok := decode.String(raw); ok {
		if t, ok := decode.Time(s); ok {
			return t, true
		}
	}
	if ms, ok := decode.Number(raw); ok && ms > 0 && ms < maxEpochMillis {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}
