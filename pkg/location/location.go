// Package location produces the stream of position samples the engine reacts to.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wanderguide/pkg/model"
)

var (
	// ErrPermissionDenied is returned when the user declined location access or the platform disabled it.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrTimeout is returned when no fix arrived within the bound.
	ErrTimeout = errors.New("location fix timed out")
	// ErrPositionUnavailable is returned when the platform could not determine a position.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrNotRunning is returned by operations that need a started Source.
	ErrNotRunning = errors.New("location source not running")
	// ErrAlreadyRunning is returned by Start on a running Source.
	ErrAlreadyRunning = errors.New("location source already running")
)

// ErrorCode is the platform error code attached to a failed fix.
type ErrorCode int

const (
	CodeUnknown             ErrorCode = 0
	CodePermissionDenied    ErrorCode = 1
	CodePositionUnavailable ErrorCode = 2
	CodeTimeout             ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission_denied"
	case CodePositionUnavailable:
		return "position_unavailable"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// PositionError is a typed platform failure. It matches the package sentinels with errors.Is.
type PositionError struct {
	Code ErrorCode
	Err  error
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location error (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("location error (%s)", e.Code)
}

func (e *PositionError) Unwrap() error { return e.Err }

func (e *PositionError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Code == CodePermissionDenied
	case ErrTimeout:
		return e.Code == CodeTimeout
	case ErrPositionUnavailable:
		return e.Code == CodePositionUnavailable
	}
	return false
}

// NewError builds a PositionError for a code.
func NewError(code ErrorCode, cause error) *PositionError {
	return &PositionError{Code: code, Err: cause}
}

// Classify converts any provider error into a *PositionError. Nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pe *PositionError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return NewError(CodePermissionDenied, err)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeTimeout, err)
	case errors.Is(err, ErrPositionUnavailable):
		return NewError(CodePositionUnavailable, err)
	}
	return NewError(CodeUnknown, err)
}

// CodeOf returns the error code carried by err.
func CodeOf(err error) ErrorCode {
	var pe *PositionError
	if errors.As(Classify(err), &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// Accuracy is the hint passed to the platform provider.
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyHigh
)

// Provider is the platform location provider.
type Provider interface {
	// CurrentPosition returns a fix or an error whose code distinguishes
	// permission-denied, timeout and position-unavailable.
	CurrentPosition(ctx context.Context, timeout time.Duration, accuracy Accuracy) (model.Position, error)
	// Close releases the underlying platform handle.
	Close() error
}

// Permission is the location permission state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
	PermissionUnknown Permission = "unknown"
)

// PermissionQuerier is implemented by providers that can report permission state directly.
type PermissionQuerier interface {
	QueryPermission(ctx context.Context) (Permission, error)
}

// Sample is one element of the position stream: either a fix or a typed failure.
type Sample struct {
	Position model.Position
	Err      error
}
