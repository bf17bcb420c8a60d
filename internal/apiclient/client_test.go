package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

func newClient(t *testing.T, h http.Handler) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return apiclient.New(apiclient.Options{
		BaseURL:    srv.URL,
		Token:      "service-token",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, `{"message":"upstream"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"_id":"e1","title":"Algebra","duration":"45","questions":["q1"]}}`)
	}))

	exam, err := c.GetExam(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, "e1", exam.ID)
	require.Equal(t, "Algebra", exam.Title)
	require.Equal(t, 45, exam.DurationMinutes)
	require.Len(t, exam.Questions, 1)
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"error":"maintenance"}`)
	}))

	_, err := c.GetExam(context.Background(), "e1")
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.Equal(t, "maintenance", apiErr.Message)
	require.Equal(t, int32(4), calls.Load())
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, apiclient.ErrNotFound},
		{http.StatusUnauthorized, apiclient.ErrUnauthorized},
	}
	for _, tc := range cases {
		var calls atomic.Int32
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tc.status)
		}))
		_, err := c.GetExam(context.Background(), "e1")
		require.ErrorIs(t, err, tc.want)
		require.Equal(t, int32(1), calls.Load(), "status %d must not be retried", tc.status)
	}
}

func TestRateLimitedError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetQuestion(context.Background(), "q1")
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.RateLimited())
	require.Equal(t, 7*time.Second, apiErr.RetryAfter)
}

func TestSubmitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	var gotKey, gotAuth string
	var gotBody model.SubmitRequest

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotKey = r.Header.Get(apiclient.IdempotencyHeader)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusInternalServerError, `{"message":"grading failed"}`)
	}))

	ctx := apiclient.WithToken(context.Background(), "student-token")
	req := model.SubmitRequest{Answers: []model.SubmittedAnswer{{QuestionID: "q1", SelectedAnswer: model.Bool(true)}}}
	_, err := c.SubmitExam(ctx, "e1", "key-1", req)

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "grading failed", apiErr.Message)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, "Bearer student-token", gotAuth)
	require.Equal(t, req, gotBody)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := apiclient.New(apiclient.Options{BaseURL: srv.URL, MaxRetries: 1, RetryDelay: time.Millisecond}, zerolog.Nop())
	_, err := c.ListQuestions(context.Background(), 1, 10)
	require.ErrorIs(t, err, apiclient.ErrNetwork)
}

func TestRemainingTimeFallsBackToLegacyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/studentExam/exams/remaining-time/e1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/studentExam/remaining-time/e1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"remainingTime":{"minutes":1,"seconds":5}}}`)
	})
	c := newClient(t, mux)

	raw, err := c.RemainingTime(context.Background(), "e1")
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"remainingTime":{"minutes":1,"seconds":5}}}`, string(raw))
}

func TestRemainingTimeUnauthorizedSkipsFallback(t *testing.T) {
	var legacy atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/studentExam/exams/remaining-time/e1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/studentExam/remaining-time/e1", func(w http.ResponseWriter, r *http.Request) {
		legacy.Add(1)
	})
	c := newClient(t, mux)

	_, err := c.RemainingTime(context.Background(), "e1")
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)
	require.Zero(t, legacy.Load())
}

func TestStartExam(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, `{"endTime":"`+end.Format(time.RFC3339)+`","exam":{"_id":"e1","duration":30}}`)
	}))

	res, err := c.StartExam(context.Background(), "e1")
	require.NoError(t, err)
	require.NotNil(t, res.EndTime)
	require.True(t, end.Equal(*res.EndTime))
	require.Equal(t, 30, res.Exam.DurationMinutes)
}

func TestStartExamBoundsBackendValues(t *testing.T) {
	cases := []struct {
		body    string
		end     bool
		minutes int
	}{
		{`{"endTime":1e300,"exam":{"_id":"e1","duration":1e20}}`, false, model.MaxDurationMinutes},
		{`{"endTime":1772355600000,"exam":{"_id":"e1","duration":-5}}`, true, 0},
		{`{"endTime":"2026-03-01T10:00:00","exam":{"_id":"e1","duration":45.4}}`, true, 45},
	}
	for _, tc := range cases {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, tc.body)
		}))
		res, err := c.StartExam(context.Background(), "e1")
		require.NoError(t, err, tc.body)
		require.Equal(t, tc.end, res.EndTime != nil, tc.body)
		require.Equal(t, tc.minutes, res.Exam.DurationMinutes, tc.body)
		require.Positive(t, res.Exam.Duration(), tc.body)
	}
}

func TestBatchQuestionsEnvelopes(t *testing.T) {
	for _, body := range []string{
		`[{"_id":"q1"}]`,
		`{"data":[{"_id":"q1"}]}`,
		`{"questions":[{"_id":"q1"}]}`,
		`{"data":{"questions":[{"_id":"q1"}]}}`,
	} {
		c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var in map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			require.Equal(t, []string{"q1"}, in["ids"])
			writeJSON(w, http.StatusOK, body)
		}))
		records, err := c.BatchQuestions(context.Background(), []string{"q1"})
		require.NoError(t, err, body)
		require.Len(t, records, 1, body)
	}
}

func TestDecodeSubmitResult(t *testing.T) {
	cases := []struct {
		body  string
		score float64
		total float64
	}{
		{`{"score":8,"totalPoints":10}`, 8, 10},
		{`{"score":8,"totalScore":20}`, 8, 20},
		{`{"data":{"score":3,"totalPoints":5}}`, 3, 5},
		{`{"data":{"score":"4","totalScore":"8"}}`, 4, 8},
		{`{}`, 0, apiclient.DefaultTotalScore},
		{`null`, 0, apiclient.DefaultTotalScore},
	}
	for _, tc := range cases {
		res := apiclient.DecodeSubmitResult(json.RawMessage(tc.body))
		require.Equal(t, tc.score, res.Score, tc.body)
		require.Equal(t, tc.total, res.TotalScore, tc.body)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	c := apiclient.New(apiclient.Options{MaxRetries: 5, RetryDelay: time.Hour, BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetExam(ctx, "e1")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, apiclient.ErrNetwork))
}
