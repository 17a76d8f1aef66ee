package domain

import (
	"errors"
	"fmt"
)

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

// NetworkError represents a socket error on the input or output side
type NetworkError struct {
	Op        string // Operation that failed (e.g., "join", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
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

// DecodeError reports a message that could not be decoded. The offending
// message is dropped; it is never retried.
type DecodeError struct {
	Exchange Exchange
	Code     int32
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s code %d: %v", e.Exchange, e.Code, e.Err)
}

func (e *DecodeError) IsRetriable() bool {
	return false
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError wraps err with the exchange and message code.
func NewDecodeError(ex Exchange, code int32, err error) *DecodeError {
	return &DecodeError{Exchange: ex, Code: code, Err: err}
}

var (
	// ErrShortPacket is returned when a buffer ends before a declared field.
	ErrShortPacket = errors.New("short packet")

	// ErrUnknownTransCode is returned for transaction codes without a decoder.
	ErrUnknownTransCode = errors.New("unknown transaction code")

	// ErrDecompress is returned when a compressed payload is corrupt.
	ErrDecompress = errors.New("decompression failed")

	// ErrNoSnapshot is returned when an incremental update arrives before any snapshot.
	ErrNoSnapshot = errors.New("no snapshot for instrument")

	// ErrStaleSequence is returned when a sequence number does not advance.
	ErrStaleSequence = errors.New("stale sequence number")

	// ErrNoMatchingPrice is returned when a trade matches no book level.
	ErrNoMatchingPrice = errors.New("no depth matched trade price")

	// ErrUnknownTemplate is returned when a FAST template id is not loaded.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
