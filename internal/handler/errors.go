package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/response"
	"github.com/stemsi/exstem-exam-engine/internal/service"
)

// errorStatus maps a service error onto its HTTP status and error code.
func errorStatus(err error) (int, response.ErrCode) {
	var unanswered *service.UnansweredError
	var submitErr *service.SubmitError
	var apiErr *apiclient.APIError

	switch {
	case errors.As(err, &unanswered):
		return http.StatusConflict, response.ErrUnansweredQuestions
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, response.ErrSessionExpired
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrSessionForbidden):
		return http.StatusForbidden, response.ErrSessionForbidden
	case errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrUnknownQuestion
	case errors.Is(err, service.ErrAlreadyExpired):
		return http.StatusConflict, response.ErrAlreadyExpired
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionInProgress
	case errors.Is(err, service.ErrSessionNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, service.ErrNoFailedSubmission):
		return http.StatusConflict, response.ErrNoFailedSubmission
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		return http.StatusTooManyRequests, response.ErrRateLimitExceeded
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, response.ErrSubmissionFailed
	case errors.Is(err, service.ErrNetwork):
		return http.StatusServiceUnavailable, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWithError writes the envelope for a service error. Submission failures
// carry the backend's message; unanswered prompts carry the count.
func failWithError(c *gin.Context, err error) {
	status, code := errorStatus(err)

	var unanswered *service.UnansweredError
	var submitErr *service.SubmitError
	switch {
	case errors.As(err, &unanswered):
		response.FailWithFields(c, status, code, map[string]string{
			"count": strconv.Itoa(unanswered.Count),
		})
	case code == response.ErrSubmissionFailed && errors.As(err, &submitErr):
		response.FailWithMessage(c, status, code, submitErr.Message)
	default:
		response.Fail(c, status, code)
	}
}
