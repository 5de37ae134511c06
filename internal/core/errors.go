package core

import "fmt"

// CLI exit codes.
const (
	ExitOK         = 0
	ExitRuntime    = 1
	ExitUsage      = 2
	ExitNotFound   = 4
	ExitQueueFull  = 6
	ExitConnection = 7
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorForReply maps a daemon error reply to a CLI exit code. The
// protocol carries human messages rather than codes, so the mapping
// keys on the daemon's boundary-converter strings.
func ErrorForReply(message string) *CLIError {
	switch message {
	case "queue is full":
		return &CLIError{Code: ExitQueueFull, Msg: message}
	case "join a voice channel first":
		return &CLIError{Code: ExitConnection, Msg: message}
	case "nothing is playing", "no track is looping":
		return &CLIError{Code: ExitNotFound, Msg: message}
	default:
		return &CLIError{Code: ExitRuntime, Msg: message}
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if cliErr, ok := err.(*CLIError); ok {
		return cliErr.Code
	}
	return ExitRuntime
}
