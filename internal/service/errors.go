package service

import (
	"errors"
	"strings"
)

const unknownErrorMessage = "An unknown error occurred"

// messenger is implemented by errors that carry a message supplied by a
// remote backend.
type messenger interface {
	BackendMessage() string
}

// ErrorMessage turns an error into the message shown to a user: the backend
// message when there is one, otherwise the error text, otherwise a fixed
// fallback.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var m messenger
	if errors.As(err, &m) {
		if msg := strings.TrimSpace(m.BackendMessage()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return unknownErrorMessage
}

// StageError reports the failure of the second step of a compound operation
// after the first step has already been applied.
type StageError struct {
	Completed string
	Failed    string
	Err       error
}

func (e *StageError) Error() string {
	return e.Completed + " recorded but " + e.Failed + " failed: " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
