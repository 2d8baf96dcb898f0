// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// JSONRPCVersion is the only protocol version accepted by the server.
const JSONRPCVersion = "2.0"

// Task RPC method names.
const (
	// MethodTasksSend is the method name for sending a task and waiting for its result.
	MethodTasksSend = "tasks/send"
	// MethodTasksSendSubscribe is the method name for sending a task and subscribing to updates.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	// MethodTasksGet is the method name for getting a task.
	MethodTasksGet = "tasks/get"
	// MethodTasksCancel is the method name for canceling a task.
	MethodTasksCancel = "tasks/cancel"
)

// JSONRPCRequest is a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	// JSONRPC version, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is the request identifier: a string, a number, or null.
	ID any `json:"id,omitempty"`
	// Method is the name of the method to invoke.
	Method string `json:"method"`
	// Params holds the undecoded method parameters.
	Params jsontext.Value `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type JSONRPCResponse struct {
	// JSONRPC version, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID echoes the request identifier, or null when it could not be determined.
	ID any `json:"id"`
	// Result contains the method result on success.
	Result any `json:"result,omitempty"`
	// Error contains the error object on failure.
	Error *JSONRPCError `json:"error,omitempty"`
}

// NewJSONRPCResult returns a successful response for id.
func NewJSONRPCResult(id, result any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// NewJSONRPCErrorResponse returns an error response for id.
func NewJSONRPCErrorResponse(id any, err *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   err,
	}
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	// Code is the error code.
	Code int `json:"code"`
	// Message is a short description of the error.
	Message string `json:"message"`
	// Data is optional additional information about the error.
	Data any `json:"data,omitempty"`
}

var _ error = (*JSONRPCError)(nil)

// Error implements error.
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	// JSONParseErrorCode indicates invalid JSON payload.
	JSONParseErrorCode = -32700
	// InvalidRequestErrorCode indicates request payload validation error.
	InvalidRequestErrorCode = -32600
	// MethodNotFoundErrorCode indicates the method does not exist.
	MethodNotFoundErrorCode = -32601
	// InvalidParamsErrorCode indicates invalid method parameters.
	InvalidParamsErrorCode = -32602
	// InternalErrorCode indicates an internal server error.
	InternalErrorCode = -32603
)

// Task specific error codes.
const (
	// TaskNotFoundErrorCode indicates the specified task ID was not found.
	TaskNotFoundErrorCode = -32001
	// TaskNotCancelableErrorCode indicates the task is in a final state and cannot be canceled.
	TaskNotCancelableErrorCode = -32002
)

// NewMethodNotFoundError creates a new MethodNotFound error object for method.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{
		Code:    MethodNotFoundErrorCode,
		Message: fmt.Sprintf("Method %s not found", method),
	}
}

// NewInvalidParamsError creates a new InvalidParams error object.
func NewInvalidParamsError(reason string) *JSONRPCError {
	e := &JSONRPCError{
		Code:    InvalidParamsErrorCode,
		Message: "Invalid params",
	}
	if reason != "" {
		e.Data = reason
	}
	return e
}

// NewInternalError creates a new InternalError error object.
func NewInternalError() *JSONRPCError {
	return &JSONRPCError{
		Code:    InternalErrorCode,
		Message: "Internal error",
	}
}

// NewTaskNotFoundError creates a new TaskNotFound error object.
func NewTaskNotFoundError() *JSONRPCError {
	return &JSONRPCError{
		Code:    TaskNotFoundErrorCode,
		Message: "Task not found",
	}
}

// NewTaskNotCancelableError creates a new TaskNotCancelable error object.
func NewTaskNotCancelableError() *JSONRPCError {
	return &JSONRPCError{
		Code:    TaskNotCancelableErrorCode,
		Message: "Task cannot be canceled",
	}
}
