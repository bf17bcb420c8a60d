package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
)

var (
	ErrNotFound             = errors.New("exam not found")
	ErrSessionExpired       = errors.New("session expired, please log in again")
	ErrNetwork              = errors.New("backend unavailable")
	ErrAlreadyExpired       = errors.New("exam time has already expired")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrSubmissionDeclined   = errors.New("submission cancelled by user")
	ErrSessionNotActive     = errors.New("exam session is not active")
	ErrUnknownQuestion      = errors.New("question is not part of this exam")
	ErrNoFailedSubmission   = errors.New("no failed submission to retry")
	ErrNoSession            = errors.New("no active session for exam")
	ErrSessionForbidden     = errors.New("exam session belongs to another student")
)

// UnansweredError is returned by a manual submit that needs confirmation.
type UnansweredError struct {
	Count int
}

func (e *UnansweredError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered", e.Count)
}

// DefaultSubmitMessage is shown when the backend gives no reason for a failed submit.
const DefaultSubmitMessage = "Failed to submit exam. Please try again."

// SubmitError is a failed submit call. Message is safe to show to the student.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed: %s", e.Message)
}

func (e *SubmitError) Unwrap() error { return e.Err }

func newSubmitError(err error) *SubmitError {
	msg := DefaultSubmitMessage
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &SubmitError{Message: msg, Err: translate(err)}
}

// translate maps backend client errors onto service sentinels while keeping
// the original chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apiclient.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	case errors.Is(err, apiclient.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, apiclient.ErrNetwork):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Temporary() {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return err
}
