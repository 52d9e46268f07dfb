package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckpointCorrupt is returned when a persisted checkpoint violates its ledger invariants
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrCatalogueNotFound is returned when no catalogue dump exists yet
	ErrCatalogueNotFound = errors.New("catalogue dump not found")

	// ErrMissingColumns is returned when the reference sheet lacks required columns
	ErrMissingColumns = errors.New("reference sheet is missing required columns")

	// ErrUnknownRetailer is returned for a retailer name with no registered adapter
	ErrUnknownRetailer = errors.New("unknown retailer")

	// ErrNoSession is returned when a fetch is attempted without captured credentials
	ErrNoSession = errors.New("no session credentials")

	// ErrRequestNotCaptured is returned when the page never issued the awaited request
	ErrRequestNotCaptured = errors.New("request not captured before timeout")

	// ErrOperatorAborted is returned when the operator declines to continue
	ErrOperatorAborted = errors.New("operator aborted run")

	// ErrConfirmedAbsent signals a valid, schema-conforming response that contains zero products
	ErrConfirmedAbsent = errors.New("confirmed absent")

	// ErrCacheMiss is returned when a cached session is missing or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrRenewalsExhausted is returned when throttle recovery ran out of session renewals
	ErrRenewalsExhausted = errors.New("session renewals exhausted")
)

// ErrorKind classifies scrape failures for the controller state machine
type ErrorKind string

const (
	KindTransient     ErrorKind = "transient"
	KindThrottled     ErrorKind = "throttled"
	KindParse         ErrorKind = "parse"
	KindFatal         ErrorKind = "fatal"
	KindConfiguration ErrorKind = "configuration"
)

// ScrapeError is a classified failure of one batch or page request
type ScrapeError struct {
	Kind    ErrorKind
	Message string
	Status  int
	Cause   error
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the same batch may succeed if tried again
func (e *ScrapeError) IsRetryable() bool {
	switch e.Kind {
	case KindTransient, KindThrottled, KindParse:
		return true
	default:
		return false
	}
}

// UserMessage returns operator-facing guidance for the failure
func (e *ScrapeError) UserMessage() string {
	switch e.Kind {
	case KindThrottled:
		return "The retailer is throttling requests. Switch network egress (VPN location/IP) before continuing."
	case KindTransient:
		return "Network error or timeout while fetching. The batch will be retried after a backoff."
	case KindParse:
		return fmt.Sprintf("Could not parse the retailer response: %s", e.Message)
	case KindConfiguration:
		return fmt.Sprintf("Configuration problem: %s", e.Message)
	default:
		return e.Message
	}
}

// NewThrottledError builds a throttling failure for an HTTP status
func NewThrottledError(status int, message string) *ScrapeError {
	return &ScrapeError{Kind: KindThrottled, Message: message, Status: status}
}

// NewTransientError builds a retryable network failure
func NewTransientError(message string, cause error) *ScrapeError {
	return &ScrapeError{Kind: KindTransient, Message: message, Cause: cause}
}

// NewParseError builds a malformed-response failure
func NewParseError(message string, cause error) *ScrapeError {
	return &ScrapeError{Kind: KindParse, Message: message, Cause: cause}
}

// NewFatalError builds a non-retryable batch failure
func NewFatalError(status int, message string) *ScrapeError {
	return &ScrapeError{Kind: KindFatal, Message: message, Status: status}
}

// NewConfigurationError builds a run-aborting configuration failure
func NewConfigurationError(message string, cause error) *ScrapeError {
	return &ScrapeError{Kind: KindConfiguration, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind of err. Unclassified errors are treated as fatal batch errors.
func KindOf(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrMissingColumns) {
		return KindConfiguration
	}
	return KindFatal
}

// throttleStatuses are the HTTP statuses retailers answer with when they start blocking a client
var throttleStatuses = map[int]bool{
	403: true, 429: true, 503: true,
	520: true, 521: true, 522: true, 523: true, 524: true,
}

// IsThrottleStatus reports whether an HTTP status is a known throttle signature
func IsThrottleStatus(status int) bool {
	return throttleStatuses[status]
}

// ClassifyStatus maps a non-200 HTTP status to a classified error
func ClassifyStatus(status int, body string) *ScrapeError {
	switch {
	case IsThrottleStatus(status):
		return NewThrottledError(status, "request throttled")
	case status >= 500:
		return &ScrapeError{Kind: KindTransient, Message: truncate(body, 200), Status: status}
	default:
		return NewFatalError(status, truncate(body, 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
