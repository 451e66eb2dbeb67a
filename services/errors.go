package services

import (
	"errors"
	"fmt"

	"cerbo-api/models"
	"cerbo-api/store"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrIncompleteSubmission = errors.New("incomplete submission")
	ErrNoValidRemarks       = errors.New("no validated remarks to report")
	ErrDeadlinePassed       = errors.New("response deadline passed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrDependency           = errors.New("collaborator failure")

	ErrDeadlineSweepAlreadyRunning = errors.New("deadline sweep already running")
)

// DependencyError wraps a failure of an external collaborator (storage,
// rendering) that aborted an operation.
type DependencyError struct {
	Collaborator string
	Err          error
}

func (e *DependencyError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *DependencyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrDependency) match any DependencyError.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependency
}

func notFound(entity string, id uint) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// lookupErr turns a store miss into ErrNotFound for entity/id and leaves
// other errors alone.
func lookupErr(err error, entity string, id uint) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(entity, id)
	}
	return err
}

// transitionErr reports an illegal state change as a conflict.
func transitionErr(err error) error {
	if errors.Is(err, models.ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
