package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/e1/stream?token=student-token"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Event      string          `json:"event"`
	Remaining  int             `json:"remaining"`
	QuestionID string          `json:"question_id"`
	Code       string          `json:"code"`
	Error      string          `json:"error"`
	Result     json.RawMessage `json:"result"`
	Session    struct {
		Status string `json:"status"`
	} `json:"session"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil skips frames, such as ticks, until one with event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		if f := readFrame(t, conn); f.Event == event {
			return f
		}
	}
	t.Fatalf("no %s frame", event)
	return frame{}
}

func TestStreamRequiresLiveSession(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/e1/stream?token=student-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamRejectsOtherCaller(t *testing.T) {
	e := newEnv(t)
	status, _ := e.do(t, http.MethodPost, "/api/v1/exams/e1/session", "")
	require.Equal(t, http.StatusCreated, status)

	srv := httptest.NewServer(e.engine)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/e1/stream?token=other-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStreamAnswersTicksAndSubmit(t *testing.T) {
	e := newEnv(t)
	status, _ := e.do(t, http.MethodPost, "/api/v1/exams/e1/session", "")
	require.Equal(t, http.StatusCreated, status)

	conn := dialStream(t, e)
	f := readFrame(t, conn)
	require.Equal(t, "state", f.Event)
	require.Equal(t, "ACTIVE", f.Session.Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	require.Equal(t, "pong", readFrame(t, conn).Event)

	e.clock.Tick(time.Second)
	require.Equal(t, 599, readUntil(t, conn, "tick").Remaining)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer", "question_id": "q1", "value": "Mitochondria"}))
	require.Equal(t, "q1", readUntil(t, conn, "saved").QuestionID)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer", "question_id": "nope", "value": "x"}))
	require.Equal(t, "QUESTION_NOT_IN_EXAM", readUntil(t, conn, "error").Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "submit"}))
	require.Equal(t, "UNANSWERED_QUESTIONS", readUntil(t, conn, "error").Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "submit", "confirm_unanswered": true}))
	submitted := readUntil(t, conn, "submitted")
	require.Contains(t, string(submitted.Result), `"percentage":67`)
}

func TestStreamClosesWithSession(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/v1/exams/e1/session", "")
	conn := dialStream(t, e)
	require.Equal(t, "state", readFrame(t, conn).Event)

	status, _ := e.do(t, http.MethodDelete, "/api/v1/exams/e1/session", "")
	require.Equal(t, http.StatusNoContent, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamSubmitFailureEvent(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/v1/exams/e1/session", "")
	e.backend.set(func(b *backendStub) {
		b.submitStatus = http.StatusServiceUnavailable
		b.submitBody = `{"error":{"message":"Try again later"}}`
	})

	conn := dialStream(t, e)
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "submit", "confirm_unanswered": true}))
	f := readUntil(t, conn, "submit_failed")
	require.Equal(t, "SUBMISSION_FAILED", f.Code)
	require.Equal(t, "Try again later", f.Error)
}
