package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/model"
	"github.com/stemsi/exstem-exam-engine/internal/response"
	"github.com/stemsi/exstem-exam-engine/internal/service"
	"github.com/stemsi/exstem-exam-engine/internal/store"
	"github.com/stemsi/exstem-exam-engine/internal/validator"
)

// ResultLoader reads the last stored result snapshot of an exam.
type ResultLoader interface {
	Load(ctx context.Context, examID string) (*model.ExamResultSnapshot, error)
}

// SessionHandler exposes exam sessions over REST.
type SessionHandler struct {
	registry *service.Registry
	results  ResultLoader
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *service.Registry, results ResultLoader, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		results:  results,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

type examURI struct {
	ExamID string `uri:"exam_id" binding:"required,max=128,printascii"`
}

type answerURI struct {
	ExamID     string `uri:"exam_id" binding:"required,max=128,printascii"`
	QuestionID string `uri:"question_id" binding:"required,max=128,printascii"`
}

// AnswerRequest is the body of PutAnswer. A missing value clears the answer.
type AnswerRequest struct {
	Value model.Value `json:"value"`
}

// SubmitRequest is the body of Submit.
type SubmitRequest struct {
	ConfirmUnanswered bool `json:"confirm_unanswered"`
}

// OpenSession godoc
// POST /api/v1/exams/:exam_id/session
// Bootstraps the attempt or returns the live one. 201 when a new session was built.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}

	sess, created, err := h.registry.Open(c.Request.Context(), uri.ExamID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", uri.ExamID).Msg("Failed to open exam session")
		failWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, sess.View())
}

// GetSession godoc
// GET /api/v1/exams/:exam_id/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// PutAnswer godoc
// PUT /api/v1/exams/:exam_id/session/answers/:question_id
func (h *SessionHandler) PutAnswer(c *gin.Context) {
	var uri answerURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}
	var req AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, fields)
		return
	}

	sess, err := h.registry.Lookup(c.Request.Context(), uri.ExamID)
	if err != nil {
		failWithError(c, err)
		return
	}
	if err := sess.SetAnswer(c.Request.Context(), uri.QuestionID, req.Value); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"question_id": uri.QuestionID,
		"value":       req.Value,
	})
}

// Submit godoc
// POST /api/v1/exams/:exam_id/session/submit
// Without confirm_unanswered, unanswered questions yield 409 UNANSWERED_QUESTIONS.
func (h *SessionHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, fields)
			return
		}
	}

	var confirm service.Confirmer
	if req.ConfirmUnanswered {
		confirm = service.ConfirmAlways
	}
	result, err := sess.Submit(c.Request.Context(), service.TriggerManual, confirm)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Retry godoc
// POST /api/v1/exams/:exam_id/session/retry
func (h *SessionHandler) Retry(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	result, err := sess.Retry(c.Request.Context())
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// CloseSession godoc
// DELETE /api/v1/exams/:exam_id/session
// Tears the live session down. Persisted answers are kept for a later resume.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}
	if err := h.registry.Close(c.Request.Context(), uri.ExamID); err != nil {
		failWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetResult godoc
// GET /api/v1/exams/:exam_id/result
// Returns the live session's result, falling back to the stored snapshot.
func (h *SessionHandler) GetResult(c *gin.Context) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}

	ctx := c.Request.Context()
	sess, err := h.registry.Lookup(ctx, uri.ExamID)
	switch {
	case err == nil:
		if v := sess.View(); v.Result != nil {
			response.Success(c, http.StatusOK, v.Result)
			return
		}
	case !errors.Is(err, service.ErrNoSession):
		failWithError(c, err)
		return
	}

	snap, err := h.results.Load(ctx, service.StorageID(apiclient.CallerFrom(ctx), uri.ExamID))
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrResultNotFound)
	case err != nil:
		h.log.Error().Err(err).Str("exam_id", uri.ExamID).Msg("Failed to load result snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	default:
		response.Success(c, http.StatusOK, snap)
	}
}

// session resolves the live session named by the path, writing the error
// response itself when there is none.
func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	var uri examURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return nil, false
	}
	sess, err := h.registry.Lookup(c.Request.Context(), uri.ExamID)
	if err != nil {
		failWithError(c, err)
		return nil, false
	}
	return sess, true
}
