package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is returned when a key does not exist.
	RedisNotFoundMessage = "redis key not found"
	// StorageErrorMessage describes object storage failures.
	StorageErrorMessage = "object storage operation failed"
	// UpstreamInferenceMessage describes language model failures.
	UpstreamInferenceMessage = "language model request failed"
)

// Code classifies an AppError for callers that branch on the failure kind
// rather than the HTTP status, such as the tool registry.
type Code string

const (
	CodeUnknown           Code = "internal"
	CodeUnknownTool       Code = "unknown_tool"
	CodeInvalidInput      Code = "invalid_input"
	CodeInvalidReference  Code = "invalid_reference"
	CodeToolExecution     Code = "tool_execution_error"
	CodeUpstreamInference Code = "upstream_inference_error"
	CodeNotFound          Code = "not_found"
	CodeBadRequest        Code = "bad_request"
	CodeDependency        Code = "dependency_error"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Code    Code
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Code:    CodeUnknown,
	}
}

// WithCode sets the classification code and returns the same error.
func (e *AppError) WithCode(code Code) *AppError {
	e.Code = code
	return e
}

// UnknownTool reports a tool call for a name that is not registered.
func UnknownTool(name string) *AppError {
	return New(nil, http.StatusBadRequest, fmt.Sprintf("tool %q is not registered", name)).WithCode(CodeUnknownTool)
}

// InvalidInput reports tool arguments that fail validation.
func InvalidInput(tool string, err error) *AppError {
	return New(err, http.StatusBadRequest, fmt.Sprintf("invalid input for %s", tool)).WithCode(CodeInvalidInput)
}

// InvalidReference reports relation graph edges pointing at undeclared documents.
func InvalidReference(err error) *AppError {
	return New(err, http.StatusBadRequest, "invalid document reference").WithCode(CodeInvalidReference)
}

// ToolExecution reports a failure inside a tool executor.
func ToolExecution(tool string, err error) *AppError {
	return New(err, http.StatusBadGateway, fmt.Sprintf("%s failed", tool)).WithCode(CodeToolExecution)
}

// UpstreamInference reports a failure of the language model provider.
func UpstreamInference(err error) *AppError {
	return New(err, http.StatusBadGateway, UpstreamInferenceMessage).WithCode(CodeUpstreamInference)
}

// BadRequest reports a malformed client request.
func BadRequest(message string) *AppError {
	return New(nil, http.StatusBadRequest, message).WithCode(CodeBadRequest)
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError {
	return New(nil, http.StatusNotFound, message).WithCode(CodeNotFound)
}

// WrapStorage wraps an object storage error with a consistent status code and message.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, StorageErrorMessage).WithCode(CodeDependency)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the classification code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return CodeUnknown
}

// PublicMessage returns the safe message of an AppError, or the generic fallback.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return SystemErrorMessage
}
