// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidLookback  = errors.New("invalid lookback")
	ErrNilHistory       = errors.New("history is nil")
	ErrUpstreamFetch    = errors.New("upstream data fetch failed")
	ErrMalformedRound   = errors.New("malformed round")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDataNotFound     = errors.New("data not found")
	ErrDatabaseError    = errors.New("database error")
	ErrCacheMiss        = errors.New("cache miss")
)

// FeedError represents an error from the upstream history feed.
type FeedError struct {
	Source  string
	Status  int
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed error [%s] status=%d: %s: %v", e.Source, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("feed error [%s] status=%d: %s", e.Source, e.Status, e.Message)
}

// Unwrap exposes both the cause and ErrUpstreamFetch so callers can match on either.
func (e *FeedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamFetch, e.Err}
	}
	return []error{ErrUpstreamFetch}
}

// NewFeedError creates a new FeedError.
func NewFeedError(source string, status int, message string, err error) *FeedError {
	return &FeedError{
		Source:  source,
		Status:  status,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Index    int64
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] #%d: %s: %v", e.DataType, e.Index, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] #%d: %s", e.DataType, e.Index, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType string, index int64, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Index:    index,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps a storage failure so it matches ErrDatabaseError.
func DatabaseError(err error, message string) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%w: %w", ErrDatabaseError, err), message)
}

// IsContractViolation reports whether err is a caller error rather than a runtime failure.
func IsContractViolation(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrInvalidLookback) || errors.Is(err, ErrNilHistory) || errors.As(err, &ve)
}
