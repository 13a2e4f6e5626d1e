package rescache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/resource"
)

var (
	// ErrNotFound is returned when the loader has no content for a hash.
	ErrNotFound = errors.New("resource not found")

	// ErrKindMismatch is returned when a hash is requested with a different
	// kind than the one its entry was created with.
	ErrKindMismatch = errors.New("resource kind mismatch")

	// ErrNotReady is returned when an operation needs a Ready instance.
	ErrNotReady = errors.New("resource not ready")

	// ErrInvalidReference is returned when using a released or moved handle.
	ErrInvalidReference = errors.New("invalid resource handle")

	// ErrConstructionFailed is matched by every *ConstructError.
	ErrConstructionFailed = errors.New("resource construction failed")

	// ErrClosed is returned after the manager was closed.
	ErrClosed = errors.New("manager closed")

	// ErrMemoryLimitExceeded is returned when a payload does not fit the
	// configured memory limit.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// Stage names the pipeline step a construction failed in.
type Stage string

const (
	StageLoad                  Stage = "load"
	StageConstruct             Stage = "construct"
	StageMemory                Stage = "memory"
	StageDependency            Stage = "dependency"
	StageDependenciesFulfilled Stage = "dependencies_fulfilled"
)

// ConstructError describes a failed construction.
//
// errors.Is(err, ErrConstructionFailed) holds for every ConstructError; the
// original cause can be accessed via errors.Unwrap.
type ConstructError struct {
	Hash  model.Hash
	Stage Stage
	cause error
}

func (e *ConstructError) Error() string {
	return fmt.Sprintf("construct %s failed at %s: %v", e.Hash, e.Stage, e.cause)
}

func (e *ConstructError) Unwrap() error { return e.cause }

// Is reports whether target is ErrConstructionFailed.
func (e *ConstructError) Is(target error) bool {
	return target == ErrConstructionFailed
}

// PanicError wraps a value recovered from a resource hook.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in resource hook: %v", e.Value)
}

// safeCall runs fn and turns a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
