package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingLabel      = errors.New("label is required")
	ErrNoFiles           = errors.New("at least one file is required")
	ErrFileTooLarge      = errors.New("file exceeds maximum allowed size")
	ErrTooManyFiles      = errors.New("too many files in one batch")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionBusy       = errors.New("session has an operation in progress")
	ErrSessionLimit      = errors.New("too many active sessions")
	ErrNothingToPoll     = errors.New("no uploaded documents to poll")
	ErrNoResults         = errors.New("no resolved documents yet")
	ErrUnsupportedExport = errors.New("unsupported export format")
)

// PollFailure is the terminal failure recorded for one key.
type PollFailure struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Body       string      `json:"body,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func (f *PollFailure) Error() string {
	switch f.Kind {
	case FailureStatus:
		return fmt.Sprintf("results endpoint returned status %d: %s", f.StatusCode, f.Body)
	default:
		return fmt.Sprintf("malformed result body: %s", f.Reason)
	}
}
