// Package errors provides centralized error definitions and error handling
// utilities for the Cadenza codebase. It defines the three fatal error
// families the training harness distinguishes, sentinel errors, constructors
// with context wrapping, and classification helpers.
//
// # Error Types
//
//   - ConfigError: configuration problems (unknown override key, value type
//     mismatch, write after freeze, missing required key at setup). Always
//     surfaced before any training step runs.
//   - DataShapeError: a batch violating the padding/length invariants.
//     Fatal for the run; data is never silently dropped or truncated.
//   - LaunchError: a worker failed to start in multi-worker mode. Fatal for
//     the whole launch; there is no partial-cluster continuation.
//
// Numerical faults (NaN or diverging losses) are intentionally NOT wrapped
// into this taxonomy: they propagate as ordinary errors so operators see
// them in logs rather than have them masked.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewConfigError("unknown override key", errors.ErrUnknownKey).WithKey("training.lr")
//	err := errors.NewDataShapeError("text length exceeds padded width").WithIndex(3)
//	err := errors.NewLaunchError("worker failed to start", cause).WithRank(2)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrFrozen) { ... }
//
//	var cfgErr *errors.ConfigError
//	if errors.As(err, &cfgErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for errors that might indicate a problem but do
	// not abort the run on their own.
	SeverityWarning Severity = iota
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityFatal is for errors that must abort the run.
	SeverityFatal
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Configuration sentinel errors
var (
	// ErrFrozen indicates a write was attempted on a frozen config tree.
	ErrFrozen = New("config tree is frozen")
	// ErrUnknownKey indicates an override key that does not exist in the
	// compiled default schema.
	ErrUnknownKey = New("unknown config key")
	// ErrTypeMismatch indicates an override value incompatible with the
	// schema type of its key.
	ErrTypeMismatch = New("config value type mismatch")
	// ErrMissingKey indicates a required config key was absent at setup.
	ErrMissingKey = New("required config key missing")
)

// Data sentinel errors
var (
	// ErrLengthExceedsWidth indicates a true length larger than the padded width.
	ErrLengthExceedsWidth = New("true length exceeds padded width")
	// ErrRaggedBatch indicates examples within one batch with differing padded widths.
	ErrRaggedBatch = New("batch examples have differing padded widths")
	// ErrEmptyBatch indicates a batch with no examples.
	ErrEmptyBatch = New("batch is empty")
)

// Launch sentinel errors
var (
	// ErrWorkerStart indicates a worker failed to start.
	ErrWorkerStart = New("worker failed to start")
	// ErrGroupAborted indicates the worker group was aborted by a peer failure.
	ErrGroupAborted = New("worker group aborted")
	// ErrBadPlan indicates an invalid launch plan.
	ErrBadPlan = New("invalid launch plan")
)

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// ConfigError represents a configuration problem. All configuration errors
// are fatal and are surfaced before any training occurs.
//
// Example:
//
//	err := errors.NewConfigError("merge failed", errors.ErrUnknownKey).WithKey("training.lrr")
//	fmt.Println(err) // "config error [key=training.lrr]: merge failed: unknown config key"
type ConfigError struct {
	baseError
	Key  string
	File string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityFatal,
		},
	}
}

// WithKey adds the offending dotted config key to the error context.
func (e *ConfigError) WithKey(key string) *ConfigError {
	e.Key = key
	return e
}

// WithFile adds the override file path to the error context.
func (e *ConfigError) WithFile(path string) *ConfigError {
	e.File = path
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}
	if e.File != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.File))
	}

	prefix := "config error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("config error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DataShapeError represents a batch whose tensors violate the padding or
// length invariants. It is fatal for the run: retrying, dropping, or
// truncating the batch would corrupt the training signal.
//
// Example:
//
//	err := errors.NewDataShapeError("text length exceeds padded width").
//	    WithField("texts").WithIndex(3)
type DataShapeError struct {
	baseError
	Field string
	Index int
}

// NewDataShapeError creates a new DataShapeError.
func NewDataShapeError(message string) *DataShapeError {
	return &DataShapeError{
		baseError: baseError{
			message:  message,
			severity: SeverityFatal,
		},
		Index: -1, // -1 indicates not set
	}
}

// WithField adds the offending batch field name to the error context.
func (e *DataShapeError) WithField(field string) *DataShapeError {
	e.Field = field
	return e
}

// WithIndex adds the offending example index to the error context.
func (e *DataShapeError) WithIndex(i int) *DataShapeError {
	e.Index = i
	return e
}

// WithCause adds a cause to the error.
func (e *DataShapeError) WithCause(cause error) *DataShapeError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *DataShapeError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Index >= 0 {
		parts = append(parts, fmt.Sprintf("example=%d", e.Index))
	}

	prefix := "data shape error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("data shape error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *DataShapeError) Is(target error) bool {
	if _, ok := target.(*DataShapeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LaunchError represents a worker that failed to start, or an otherwise
// unusable launch plan. Fatal for the whole run.
//
// Example:
//
//	err := errors.NewLaunchError("spawn failed", cause).WithRank(2).WithWorkerCount(4)
type LaunchError struct {
	baseError
	Rank        int
	WorkerCount int
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(message string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityFatal,
		},
		Rank: -1, // -1 indicates not set
	}
}

// WithRank adds the failing worker's rank to the error context.
func (e *LaunchError) WithRank(rank int) *LaunchError {
	e.Rank = rank
	return e
}

// WithWorkerCount adds the requested worker count to the error context.
func (e *LaunchError) WithWorkerCount(n int) *LaunchError {
	e.WorkerCount = n
	return e
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	var parts []string
	if e.Rank >= 0 {
		parts = append(parts, fmt.Sprintf("rank=%d", e.Rank))
	}
	if e.WorkerCount > 0 {
		parts = append(parts, fmt.Sprintf("nprocs=%d", e.WorkerCount))
	}

	prefix := "launch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("launch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *LaunchError) Is(target error) bool {
	if _, ok := target.(*LaunchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors outside this package's taxonomy.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityWarning
	}

	var classified interface{ Severity() Severity }
	if As(err, &classified) {
		return classified.Severity()
	}

	return SeverityError
}

// IsFatal returns true if the error must abort the run. Every error in this
// package's taxonomy is fatal; unknown errors are treated as fatal as well,
// since the harness performs no in-process retries.
func IsFatal(err error) bool {
	return err != nil
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to build batch source")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "worker %d failed", rank)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
