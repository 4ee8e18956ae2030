package client

import (
	"errors"
	"fmt"
)

// Submission result codes returned by the remote service.
const (
	// ResultBusy means a previous email request is still being
	// processed; the service accepts one outstanding request at a time.
	ResultBusy = 111

	// ResultGeneralError is the service's unspecific failure code.
	ResultGeneralError = 110
)

// ErrTimeout is returned when a submission times out. Timeouts are a
// soft no-op: the orchestrator logs them and re-attempts the same batch
// on its next loop iteration without scheduling a backoff.
var ErrTimeout = errors.New("request timed out")

// RetryReason classifies why a submission must be retried.
type RetryReason string

const (
	// ReasonBusy is the single-outstanding-request busy signal (111).
	ReasonBusy RetryReason = "busy"

	// ReasonServer covers non-success result codes and non-200 responses.
	ReasonServer RetryReason = "server"

	// ReasonConnection covers connection-level failures.
	ReasonConnection RetryReason = "connection"
)

// CatalogError reports a non-200 response from a catalog endpoint.
// Catalog errors are fatal: the run aborts with no partial state written.
type CatalogError struct {
	Endpoint   string
	StatusCode int
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	return fmt.Sprintf("fetching %s failed with status code %d", e.Endpoint, e.StatusCode)
}

// RetryableError reports a submission failure the orchestrator handles
// by waiting a fixed interval and retrying the same batch. The
// checkpoint never advances on a retryable error.
type RetryableError struct {
	Reason     RetryReason
	ResultCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable %s error: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("retryable %s error: %s", e.Reason, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is (or wraps) a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
