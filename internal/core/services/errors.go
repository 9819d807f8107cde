package services

import (
	"errors"
	"strings"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrExecution  = errors.New("execution failed")
)

// Error is a service failure with user-facing messages.
type Error struct {
	Kind     error
	Messages []string
	Fields   map[string][]string
	Err      error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, e.Messages...)
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func notFound(msg string) *Error { return &Error{Kind: ErrNotFound, Messages: []string{msg}} }
func conflict(msg string) *Error { return &Error{Kind: ErrConflict, Messages: []string{msg}} }

func validation(msg string) *Error {
	return &Error{Kind: ErrValidation, Messages: []string{msg}}
}

func fieldErrors(fields map[string][]string) *Error {
	return &Error{Kind: ErrValidation, Fields: fields}
}

func executionFailure(msg string, cause error) *Error {
	return &Error{Kind: ErrExecution, Messages: []string{msg}, Err: cause}
}

// Task errors
var (
	ErrTaskNotFound     = notFound("No task with this id.")
	ErrTaskTypeNotFound = notFound("No task type with this name.")
	ErrTaskCancelled    = conflict("This task has been cancelled.")
	ErrTaskCompleted    = conflict("This task has already been completed.")
	ErrTaskApproved     = conflict("This task has already been approved.")
	ErrTaskNotApproved  = conflict("This task has not been approved.")
	ErrTaskInvalid      = validation("Cannot approve an invalid task. Update data and rerun pre_approve.")
)

// Token errors
var (
	ErrTokenNotFound    = notFound("This token does not exist or has expired.")
	ErrTokenNotRequired = conflict("This task does not require a token.")
	ErrTaskNotReady     = conflict("This task has unfinished actions; approve it again first.")
)

// Notification errors
var (
	ErrNotificationNotFound     = notFound("No notification with this id.")
	ErrNotificationAcknowledged = conflict("Notification already acknowledged.")
	ErrNotificationList         = fieldErrors(map[string][]string{
		"notifications": {"this field is required and needs to be a list."},
	})
)
