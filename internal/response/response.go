package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response is the envelope of every engine HTTP reply. Data carries a session
// view, an answer echo or a result snapshot; Error is set instead on failure.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody names what went wrong. Fields holds per-field validation messages,
// or the unanswered count of a submit that needs confirmation.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Metadata ties a reply to the X-Request-ID forwarded to the exam backend.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success replies with a session view, answer echo or result snapshot.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// FailWithMessage relays a backend rejection, such as a refused submission,
// with the backend's own message. An empty message falls back to the default.
func FailWithMessage(c *gin.Context, statusCode int, code ErrCode, message string) {
	if message == "" {
		message = GetMessage(code)
	}
	fail(c, statusCode, &ErrorBody{Code: code, Message: message})
}

// Fail replies with code and its localized message.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	fail(c, statusCode, &ErrorBody{Code: code, Message: GetMessage(code)})
}

// FailWithFields replies with code plus per-field details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	fail(c, statusCode, &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields})
}

// AbortFail stops the chain; used by the token and rate-limit middleware.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

func fail(c *gin.Context, statusCode int, body *ErrorBody) {
	c.JSON(statusCode, Response{
		Error:    body,
		Metadata: buildMetadata(c),
	})
}

func buildMetadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		// Routes outside RequestIDMiddleware.
		id = uuid.NewString()
	}
	return Metadata{
		RequestID: id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
