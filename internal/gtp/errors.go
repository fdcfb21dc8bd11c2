package gtp

import (
	"errors"
	"strings"
)

// ErrQuit is returned by Engine.Run once the engine has processed quit.
var ErrQuit = errors.New("engine has quit")

// LaunchError reports that an engine process could not be started.
type LaunchError struct {
	Command []string
	Err     error
}

func (e *LaunchError) Error() string { return e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }

// ProtocolError is a well-formed failure ('?') response from an engine.
// Message holds the engine's error text.
type ProtocolError struct {
	Command string
	Message string
}

func (e *ProtocolError) Error() string {
	return "failure response from '" + e.Command + "': " + e.Message
}

// TransportError reports an I/O failure, a dead process, or a malformed
// response. None of these say anything about the game being played.
type TransportError struct {
	Msg string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError is returned by a Handler to produce a failure response.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string { return e.Message }

// Failf is shorthand for a CommandError.
func Failf(msg string) error {
	return &CommandError{Message: msg}
}

// FormatCommand joins a command and its arguments the way they go on the wire.
func FormatCommand(command string, args ...string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
