package match

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
)

// CheckFailed is the single failure outcome of Check.
type CheckFailed struct {
	Msg string
	Err error
}

func (e *CheckFailed) Error() string { return e.Msg }

func (e *CheckFailed) Unwrap() error { return e.Err }

// JobFailed reports that a game could not be completed. The token of such a
// game should be rolled back so that it is played again.
type JobFailed struct {
	Err error
}

func (e *JobFailed) Error() string { return "aborting game due to error: " + e.Err.Error() }

func (e *JobFailed) Unwrap() error { return e.Err }

// causeError is an operator-facing message that keeps its underlying error
// reachable through errors.As.
type causeError struct {
	msg string
	err error
}

func (e *causeError) Error() string { return e.msg }

func (e *causeError) Unwrap() error { return e.err }

func causef(err error, format string, args ...any) error {
	return &causeError{msg: fmt.Sprintf(format, args...), err: err}
}

// describeSendError explains a failed Send to who ("two", "player two").
func describeSendError(err error, line, who string) error {
	var pe *gtp.ProtocolError
	if errors.As(err, &pe) {
		return causef(err, "failure response from '%s' to %s: %s", line, who, pe.Message)
	}
	return causef(err, "transport error sending '%s' to %s: %v", line, who, err)
}

// isProtocolError reports whether err is a '?' response from the engine.
func isProtocolError(err error) bool {
	var pe *gtp.ProtocolError
	return errors.As(err, &pe)
}
