package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/integrail/gamma-client/pkg/client/dto"
)

// ConfigError reports invalid or missing client configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// SubmissionError reports a rejected submission or a malformed submit response.
type SubmissionError struct {
	StatusCode int
	Body       string
	Retryable  bool
	Cause      error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("submission rejected: status code %d: %s", e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("submission failed: %v", e.Cause)
	default:
		return fmt.Sprintf("submission failed: %s", e.Body)
	}
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// PollError reports a failure to query the status of a generation. It says nothing about the
// generation itself, see JobFailedError for that.
type PollError struct {
	GenerationID string
	StatusCode   int
	Body         string
	Retryable    bool
	Cause        error
}

func (e *PollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to poll generation %q: status code %d: %s", e.GenerationID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("failed to poll generation %q: %v", e.GenerationID, causeOr(e.Cause, e.Body))
}

func (e *PollError) Unwrap() error { return e.Cause }

// TimeoutError reports that the wait budget ran out while the generation was still in progress.
type TimeoutError struct {
	GenerationID string
	Elapsed      time.Duration
	MaxWait      time.Duration
	LastStatus   Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation %q timed out after %s (max wait %s), last status: %s",
		e.GenerationID, e.Elapsed.Round(time.Millisecond), e.MaxWait, e.LastStatus)
}

// JobFailedError carries the failure reported by the remote service verbatim.
type JobFailedError struct {
	GenerationID string
	Detail       string
	Payload      *dto.Generation
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("generation %q failed: %s", e.GenerationID, e.Detail)
}

// DownloadError reports a failed artifact fetch. The generation stays completed, the fetch may be retried.
type DownloadError struct {
	GenerationID string
	URL          string
	StatusCode   int
	Retryable    bool
	Cause        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to download artifact of generation %q from %s: status code %d", e.GenerationID, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to download artifact of generation %q from %s: %v", e.GenerationID, e.URL, e.Cause)
}

func (e *DownloadError) Unwrap() error { return e.Cause }

// CancelledError is returned when the caller's context ends the life-cycle.
type CancelledError struct {
	GenerationID string
	LastStatus   Status
	Cause        error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("generation %q cancelled while %s: %v", e.GenerationID, e.LastStatus, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

var errTruncated = errors.New("truncated response body")

// transportError is the classified outcome of a single HTTP exchange.
type transportError struct {
	StatusCode int
	Body       string
	Retryable  bool
	Cause      error
}

func (e *transportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("status code %d: %s", e.StatusCode, e.Body)
	}
	return e.Cause.Error()
}

func (e *transportError) Unwrap() error { return e.Cause }

// classifyStatus maps a non-success HTTP status onto the retry rule: 5xx retryable, everything else fatal.
func classifyStatus(statusCode int, body []byte) *transportError {
	return &transportError{
		StatusCode: statusCode,
		Body:       string(body),
		Retryable:  statusCode >= http.StatusInternalServerError,
	}
}

// classifyErr maps a failure to complete an HTTP exchange onto the retry rule.
func classifyErr(ctx context.Context, err error) *transportError {
	if ctx.Err() != nil {
		return &transportError{Cause: err}
	}
	var netErr net.Error
	retryable := errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, errTruncated)
	return &transportError{Cause: err, Retryable: retryable}
}

// IsRetryable reports whether err is a transient fault worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

func causeOr(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
