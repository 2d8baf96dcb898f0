// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"
)

// InvalidParamsError reports a submission missing a required field.
type InvalidParamsError struct {
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return "invalid params: " + e.Reason
}

// TaskNotFoundError reports a lookup of an unknown task.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// TaskNotCancelableError reports a cancel request for a task already in a terminal state.
type TaskNotCancelableError struct {
	TaskID string
	State  TaskState
}

func (e *TaskNotCancelableError) Error() string {
	return fmt.Sprintf("task %s cannot be canceled in state %s", e.TaskID, e.State)
}

// MethodNotFoundError reports an RPC call to an unknown method.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.Method)
}

// IsTaskNotFound reports whether any error in err's tree is a [*TaskNotFoundError].
func IsTaskNotFound(err error) bool {
	var nf *TaskNotFoundError
	return errors.As(err, &nf)
}

// ToJSONRPCError maps err to the JSON-RPC error object returned to the caller.
//
// Errors that are not part of the task protocol become a generic InternalError so no internal
// detail reaches the client.
func ToJSONRPCError(err error) *JSONRPCError {
	var (
		rpcErr       *JSONRPCError
		invalid      *InvalidParamsError
		notFound     *TaskNotFoundError
		notCancel    *TaskNotCancelableError
		noSuchMethod *MethodNotFoundError
	)
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &invalid):
		return NewInvalidParamsError(invalid.Reason)
	case errors.As(err, &notFound):
		return NewTaskNotFoundError()
	case errors.As(err, &notCancel):
		return NewTaskNotCancelableError()
	case errors.As(err, &noSuchMethod):
		return NewMethodNotFoundError(noSuchMethod.Method)
	default:
		return NewInternalError()
	}
}
