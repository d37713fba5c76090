package tenant

import (
	"fmt"

	"github.com/latchql/latch/internal/validate"
)

// ErrorCode categorizes a runtime error raised while dispatching or
// running a tick.
type ErrorCode string

const (
	// ErrCodeTimerCeilingExceeded means a task tried to register more
	// live timers than the tenant's ceiling permits.
	ErrCodeTimerCeilingExceeded ErrorCode = "TIMER_CEILING_EXCEEDED"

	// ErrCodeUnknownTask means a dispatched message named a task the
	// tenant has no registration for.
	ErrCodeUnknownTask ErrorCode = "UNKNOWN_TASK"

	// ErrCodeDuplicateRegistration means register(name, fn) was called
	// twice for the same name.
	ErrCodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"

	// ErrCodeUncompiledQuery means context.executeQuery was called with
	// the reserved "invalid" fingerprint.
	ErrCodeUncompiledQuery ErrorCode = "UNCOMPILED_QUERY"

	// ErrCodeSubtaskNotFound means resumeTask named a subtask id with no
	// live registration. Cancelling such an id is a silent no-op.
	ErrCodeSubtaskNotFound ErrorCode = "SUBTASK_NOT_FOUND"

	// ErrCodeDetachedContext means a task tried to use a Context handle
	// after its owning task reached a terminal disposition.
	ErrCodeDetachedContext ErrorCode = "DETACHED_CONTEXT"

	// ErrCodeCancelled means a promise subtask was rejected because its
	// owning request was cancelled before the subtask settled.
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// ErrCodeValidationFailed means executeQuery's merged parameter
	// bundle failed one or more attached validators.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeFragmentNotAllowed means executeQuery named fragment
	// fingerprints the parent query's whitelist entry never declared
	// as allowed, or named fragments without carrying that entry.
	ErrCodeFragmentNotAllowed ErrorCode = "FRAGMENT_NOT_ALLOWED"
)

// Error is a structured runtime error raised during a tick. Unlike a
// wire error from the server, it never crosses the tenant boundary
// directly - the tick converts it into a CallError outbox message for
// the offending inbox message and goes on dispatching the rest of the
// batch.
type Error struct {
	Code    ErrorCode
	Message string
	TaskID  string
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: %s (task=%s)", e.Code, e.Message, e.TaskID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newTimerCeilingError(taskID string, ceiling int) *Error {
	return &Error{
		Code:    ErrCodeTimerCeilingExceeded,
		Message: fmt.Sprintf("tenant permits at most %d live timers", ceiling),
		TaskID:  taskID,
	}
}

func newUnknownTaskError(name string) *Error {
	return &Error{Code: ErrCodeUnknownTask, Message: fmt.Sprintf("no task registered under %q", name)}
}

func newDuplicateRegistrationError(name string) *Error {
	return &Error{Code: ErrCodeDuplicateRegistration, Message: fmt.Sprintf("task %q is already registered", name)}
}

func newUncompiledQueryError(taskID string) *Error {
	return &Error{
		Code:    ErrCodeUncompiledQuery,
		Message: "query fingerprint is the reserved uncompiled-query sentinel",
		TaskID:  taskID,
	}
}

func newDetachedContextError(taskID string) *Error {
	return &Error{Code: ErrCodeDetachedContext, Message: "context used after task disposition", TaskID: taskID}
}

func newCancellationError(taskID string) *Error {
	return &Error{Code: ErrCodeCancelled, Message: "request was cancelled before this subtask settled", TaskID: taskID}
}

func newValidationError(taskID string, errs validate.Errors) *Error {
	return &Error{Code: ErrCodeValidationFailed, Message: errs.Error(), TaskID: taskID}
}

func newFragmentNotAllowedError(taskID string, fragments []string) *Error {
	return &Error{
		Code:    ErrCodeFragmentNotAllowed,
		Message: fmt.Sprintf("fragments %v are not allowed for this query", fragments),
		TaskID:  taskID,
	}
}
