package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "fetch_price", "post")
	Kind      error  // Taxonomy sentinel (ErrFeedUnavailable, ErrPriceUnavailable, ...)
	Err       error  // Underlying error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

// Unwrap exposes both the taxonomy sentinel and the cause to errors.Is.
func (e *NetworkError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// NewFeedError creates a retriable FeedUnavailable error
func NewFeedError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Kind: ErrFeedUnavailable, Err: err, Retriable: true}
}

// NewPriceError creates a retriable PriceUnavailable error
func NewPriceError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Kind: ErrPriceUnavailable, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrFeedUnavailable is a transient source or price feed failure. Aborts the current cycle.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrPriceUnavailable means one asset had a missing or invalid sample. Skips the asset only.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrDispatchFailed is a downstream send failure. Logged only.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrPersistenceFailure is a snapshot read or write failure.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrMalformedRecord is returned for feed entries that cannot be normalized.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrAtCapacity is returned when the watchlist holds the maximum tracked count.
	ErrAtCapacity = errors.New("watchlist at capacity")

	// ErrDuplicate is returned when an id is already tracked.
	ErrDuplicate = errors.New("asset already tracked")

	// ErrRetired is returned when an id already triggered and was retired.
	ErrRetired = errors.New("asset already retired")
)
