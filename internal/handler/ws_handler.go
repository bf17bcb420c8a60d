package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/response"
	"github.com/stemsi/exstem-exam-engine/internal/service"
	"github.com/stemsi/exstem-exam-engine/internal/validator"
	ws "github.com/stemsi/exstem-exam-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session's countdown and accepts answers and
// submits over one socket.
type WSHandler struct {
	registry *service.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *service.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream
// The session must already be open. The first frame is the current state.
func (h *WSHandler) ExamStream(c *gin.Context) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}
	sess, err := h.registry.Lookup(c.Request.Context(), uri.ExamID)
	if err != nil {
		failWithError(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().Str("exam_id", uri.ExamID).Logger()
	wsLog.Info().Msg("Stream connected")

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if err := conn.WriteTyped(ws.StateResponse{Event: ws.EventState, Session: sess.State()}); err != nil {
		return
	}

	go h.pump(conn, events, wsLog)

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, sess, data)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, sess, data)
		case ws.ActionPing:
			conn.WriteTyped(ws.PlainResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// pump forwards session events until the subscription ends. A session that
// closes under the stream ends the connection.
func (h *WSHandler) pump(conn *ws.Conn, events <-chan service.Event, log zerolog.Logger) {
	for ev := range events {
		var err error
		switch ev.Type {
		case service.EventTick:
			err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining})
		case service.EventExpired:
			err = conn.WriteTyped(ws.PlainResponse{Event: ws.EventExpired})
		case service.EventSubmitted:
			err = conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, Result: ev.Result})
		case service.EventSubmitFailed:
			err = conn.WriteTyped(ws.ErrorResponse{
				Event: ws.EventSubmitFailed,
				Code:  string(response.ErrSubmissionFailed),
				Error: ev.Err.Message,
			})
		}
		if err != nil {
			log.Debug().Err(err).Msg("Event write failed")
			return
		}
	}
	conn.CloseNormal("session closed")
}

func (h *WSHandler) handleAnswer(c *gin.Context, conn *ws.Conn, sess *service.Session, data []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionID == "" {
		conn.WriteError(string(response.ErrInvalidPayload), "question_id and value are required")
		return
	}
	if err := sess.SetAnswer(c.Request.Context(), req.QuestionID, req.Value); err != nil {
		writeWSError(conn, err)
		return
	}
	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: req.QuestionID})
}

// handleSubmit runs a manual submit. Outcomes reach the client as the
// submitted or submit_failed events; only refusals are written here.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *ws.Conn, sess *service.Session, data []byte) {
	var req ws.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return
	}
	var confirm service.Confirmer
	if req.ConfirmUnanswered {
		confirm = service.ConfirmAlways
	}

	_, err := sess.Submit(c.Request.Context(), service.TriggerManual, confirm)
	var submitErr *service.SubmitError
	if err != nil && !errors.As(err, &submitErr) {
		writeWSError(conn, err)
	}
}

func writeWSError(conn *ws.Conn, err error) {
	_, code := errorStatus(err)
	msg := response.GetMessage(code)
	var unanswered *service.UnansweredError
	if errors.As(err, &unanswered) {
		msg = unanswered.Error()
	}
	conn.WriteError(string(code), msg)
}
