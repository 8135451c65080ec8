package control

import "errors"

// Sentinel errors returned by the control package.
var (
	// ErrInvalidArgument indicates an empty command or bad dial parameters.
	ErrInvalidArgument = errors.New("control: invalid argument")

	// ErrClosed indicates the connection has already been closed.
	ErrClosed = errors.New("control: connection closed")

	// ErrWrite indicates a command could not be encoded or written.
	ErrWrite = errors.New("control: write failed")

	// ErrMalformed indicates a reply whose status line could not be parsed.
	ErrMalformed = errors.New("control: malformed reply")
)
