// Package errors provides custom error types for the Host-Elite application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeInvalidPath        = "INVALID_PATH"
	ErrCodeTooLarge           = "TOO_LARGE"
	ErrCodeAlreadyRunning     = "ALREADY_RUNNING"
	ErrCodeNotRunning         = "NOT_RUNNING"
	ErrCodeMissingBuildRecipe = "MISSING_BUILD_RECIPE"
	ErrCodeDeploymentFailed   = "DEPLOYMENT_FAILED"
	ErrCodeSpawnFailed        = "SPAWN_FAILED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidPath creates an error for a path that resolves outside a bot's root directory.
func InvalidPath(path string) *AppError {
	return &AppError{
		Code:       ErrCodeInvalidPath,
		Message:    fmt.Sprintf("path '%s' escapes the bot directory", path),
		HTTPStatus: http.StatusBadRequest,
	}
}

// TooLarge creates an error for content exceeding the configured size ceiling.
func TooLarge(path string, size, limit int64) *AppError {
	return &AppError{
		Code:       ErrCodeTooLarge,
		Message:    fmt.Sprintf("'%s' is %d bytes, exceeds limit of %d bytes", path, size, limit),
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// AlreadyRunning creates an error for starting a bot that already has a live process.
func AlreadyRunning(botID string) *AppError {
	return &AppError{
		Code:       ErrCodeAlreadyRunning,
		Message:    fmt.Sprintf("bot '%s' is already running", botID),
		HTTPStatus: http.StatusConflict,
	}
}

// NotRunning creates an error for stopping a bot that has no live process.
func NotRunning(botID string) *AppError {
	return &AppError{
		Code:       ErrCodeNotRunning,
		Message:    fmt.Sprintf("bot '%s' is not running", botID),
		HTTPStatus: http.StatusConflict,
	}
}

// MissingBuildRecipe creates an error for container deployments without a Dockerfile.
func MissingBuildRecipe(repo string) *AppError {
	return &AppError{
		Code:       ErrCodeMissingBuildRecipe,
		Message:    fmt.Sprintf("repository '%s' has no Dockerfile at its root", repo),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// DeploymentFailed wraps an underlying tool failure during deployment.
func DeploymentFailed(step string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeDeploymentFailed,
		Message:    fmt.Sprintf("deployment step '%s' failed", step),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SpawnFailed wraps a process launch failure.
func SpawnFailed(botID string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeSpawnFailed,
		Message:    fmt.Sprintf("failed to spawn process for bot '%s'", botID),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	// Otherwise, wrap as an internal error
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidPath checks if the error is a path-escape error.
func IsInvalidPath(err error) bool {
	return hasCode(err, ErrCodeInvalidPath)
}

// IsAlreadyRunning checks if the error is an already-running lifecycle error.
func IsAlreadyRunning(err error) bool {
	return hasCode(err, ErrCodeAlreadyRunning)
}

// IsNotRunning checks if the error is a not-running lifecycle error.
func IsNotRunning(err error) bool {
	return hasCode(err, ErrCodeNotRunning)
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
