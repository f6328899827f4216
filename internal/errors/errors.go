// Package errors provides structured error types for the proposal agent.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrNoActiveTask = errors.New("no active task")
	ErrTaskActive   = errors.New("a task is already active")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
	ErrTimeout      = errors.New("operation timed out")
)

// ValidationError rejects malformed task, pattern, or interaction shapes
// before any state mutation.
type ValidationError struct {
	Kind    string // "task", "pattern", "interaction", ...
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Message)
}

// NewValidationError creates a validation error for the given shape kind.
func NewValidationError(kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DependencyError signals a task batch referencing an unknown task ID.
// The whole batch is rejected atomically.
type DependencyError struct {
	TaskID string
	DepID  string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DepID)
}

// GenerationError wraps a failure from the external text generator or
// document retriever, including a malformed response.
type GenerationError struct {
	Source  string // "textgen" or "retriever"
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError creates a generation error from the given source.
func NewGenerationError(source, message string, err error) *GenerationError {
	return &GenerationError{Source: source, Message: message, Err: err}
}

// StorageError wraps a durable-store read/write failure. Callers log it and
// fall back to in-memory operation for the request instead of crashing.
type StorageError struct {
	Op   string // "save_pattern", "load_session", ...
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError creates a storage error for the given operation.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

// IsGeneration reports whether err is a GenerationError.
func IsGeneration(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Storage errors retry (a second write often succeeds); validation and
// dependency errors never do.
func IsRetryable(err error) bool {
	if IsStorage(err) {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}
