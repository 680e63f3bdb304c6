package meili

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote operations.
var (
	ErrNotFound   = errors.New("meili: not found")
	ErrTaskFailed = errors.New("meili: remote task failed")
)

// APIError is a non-2xx response from the engine.
type APIError struct {
	StatusCode int    `json:"-"`
	Op         string `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Type       string `json:"type"`
	Link       string `json:"link"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s (%s)", e.Op, e.StatusCode, e.Message, e.Code)
}

// Is makes a 404 response match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TaskFailedError reports a task that reached the failed status.
type TaskFailedError struct {
	Task Task
}

func (e *TaskFailedError) Error() string {
	if e.Task.Error == nil {
		return fmt.Sprintf("meili: task %d (%s) %s", e.Task.UID, e.Task.Type, e.Task.Status)
	}
	return fmt.Sprintf("meili: task %d (%s) %s: %s: %s",
		e.Task.UID, e.Task.Type, e.Task.Status, e.Task.Error.Code, e.Task.Error.Message)
}

func (e *TaskFailedError) Unwrap() error { return ErrTaskFailed }
