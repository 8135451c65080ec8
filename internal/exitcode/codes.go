// Package exitcode defines structured exit codes for torctl commands.
// Library packages return coded errors for the failure classes a caller must
// be able to tell apart (network vs filesystem vs authentication), and the
// CLI turns them into process exit codes.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage, internal)
//   - 10-19: Resource not found
//   - 20-29: Permission, filesystem and authentication errors
//   - 30-39: Network/connectivity errors
//   - 40-49: Timeout errors
//   - 50-59: Conflict/state errors
//
// # Usage
//
//	return exitcode.Network("fetching release listing", err)   // Exit code 30
//	return exitcode.Filesystem("creating install dir", dir, err) // Exit code 22
//
//	if exitcode.Is(err, exitcode.ErrNetwork) {
//	    // retry later
//	}
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for torctl commands.
const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral  = 1 // General/unknown error
	ErrUsage    = 2 // Invalid arguments or usage
	ErrInternal = 3 // Internal error (bug)

	// Resource not found (10-19)
	ErrNotFound     = 10 // No matching release/build
	ErrNotInstalled = 11 // Daemon binary not installed
	ErrFileNotFound = 13 // File or path not found

	// Permission/access errors (20-29)
	ErrPermission = 20 // Permission denied
	ErrFilesystem = 22 // Filesystem operation failed (disk full, permissions, ...)
	ErrAuth       = 23 // Control channel authentication rejected

	// Network/connectivity (30-39)
	ErrNetwork = 30 // Network/connectivity error

	// Timeout errors (40-49)
	ErrTimeout = 40 // Operation timed out

	// Conflict/state errors (50-59)
	ErrConflict = 50 // Resource conflict
	ErrBusy     = 52 // Resource is busy (install lock held)
)

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a code and printf-style message.
func Wrapf(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if the error doesn't have a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// Network wraps a transport or HTTP status failure.
func Network(operation string, cause error) *Error {
	return Wrap(ErrNetwork, operation, cause)
}

// Filesystem wraps a failed filesystem operation on path.
func Filesystem(operation, path string, cause error) *Error {
	return Wrapf(ErrFilesystem, cause, "%s %s", operation, path)
}

// Usage returns an invalid-argument error.
func Usage(format string, args ...interface{}) *Error {
	return Newf(ErrUsage, format, args...)
}

// AuthFailed returns an error for a rejected control-channel secret.
func AuthFailed(endpoint string) *Error {
	return Newf(ErrAuth, "control authentication rejected by %s", endpoint)
}

// NotInstalled returns an error for a missing daemon binary.
func NotInstalled(path string) *Error {
	return Newf(ErrNotInstalled, "daemon not installed: %s", path)
}

// Timeout returns a timeout error.
func Timeout(operation string) *Error {
	return Newf(ErrTimeout, "operation timed out: %s", operation)
}

// Busy returns an error when a resource is held by another process.
func Busy(resource string) *Error {
	return Newf(ErrBusy, "%s is busy", resource)
}
