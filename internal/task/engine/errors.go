package engine

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull       = errors.New("queue is full")
	ErrNotFound        = errors.New("task not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrAlreadyTerminal = errors.New("task already finished")
	ErrUnknownType     = errors.New("unknown task type")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrStopped         = errors.New("task engine stopped")
)

// CapacityError is returned by Submit when the wait queue is full.
// Nothing is created when it is returned.
type CapacityError struct {
	QueueSize    int
	MaxQueueSize int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("queue is full (%d/%d)", e.QueueSize, e.MaxQueueSize)
}

func (e *CapacityError) Is(target error) bool { return target == ErrQueueFull }

// AlreadyTerminalError is returned by Cancel for a task that already finished.
type AlreadyTerminalError struct {
	Status Status
}

func (e *AlreadyTerminalError) Error() string { return "task is already " + string(e.Status) }

func (e *AlreadyTerminalError) Is(target error) bool { return target == ErrAlreadyTerminal }
