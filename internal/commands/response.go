package commands

import (
	"errors"
	"fmt"

	"github.com/fenilsonani/mailbridge/internal/validation"
)

const (
	StatusSuccess = "success"
	StatusSandbox = "sandbox"
)

// Response is the JSON envelope every command returns: either a status
// with a result, or an error message.
type Response struct {
	Status string `json:"status,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r Response) Failed() bool {
	return r.Error != ""
}

func success(result any) Response {
	return Response{Status: StatusSuccess, Result: result}
}

func sandboxed(result map[string]any) Response {
	result["sandbox_mode"] = true
	return Response{Status: StatusSandbox, Result: result}
}

func failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// commandError is an error already worded for the caller. It is rendered
// without an operation prefix.
type commandError struct {
	msg string
}

func (e *commandError) Error() string {
	return e.msg
}

func newCommandError(format string, args ...any) error {
	return &commandError{msg: fmt.Sprintf(format, args...)}
}

// fail renders err with prefix unless it is an argument or command error.
func fail(prefix string, err error) Response {
	var ce *commandError
	if validation.IsArgumentError(err) || errors.As(err, &ce) {
		return Response{Error: err.Error()}
	}
	return Response{Error: prefix + err.Error()}
}
