package util

import (
	"errors"
	"fmt"
	"os"
)

// ErrInvalidInput marks errors caused by flags, arguments or config values.
var ErrInvalidInput = errors.New("invalid input")

// Process exit codes
const (
	ExitOK = 0

	// ExitIssuesFound is returned by a one-off investigation whose report
	// carries critical or high findings.
	ExitIssuesFound = 1

	// ExitInvalidInput indicates validation errors or invalid parameters
	ExitInvalidInput = 2

	// ExitRuntimeError indicates I/O errors, API failures, or runtime issues
	ExitRuntimeError = 3
)

// CodeFor maps a command error to its exit code.
func CodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	default:
		return ExitRuntimeError
	}
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError prints an error message to stderr and exits with the given code
func ExitWithError(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	Exit(code)
}
