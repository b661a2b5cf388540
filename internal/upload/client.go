// Package upload sends queued activities to the upload service.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/sstent/zwiftsync/internal/auth"
)

// ErrUpload marks a failed upload of a single activity. It is recoverable:
// the pipeline records it and moves on.
var ErrUpload = errors.New("upload failed")

// Client is an upload service the pipeline can authorize against and send
// activity files to.
type Client interface {
	auth.Authorizer
	// Upload sends the activity at path. A non-nil error is the failure
	// result of that single attempt.
	Upload(ctx context.Context, path, notes string) error
	// Name identifies the destination in logs and history.
	Name() string
}

// Error is returned by clients when the service rejected or could not take an
// upload.
type Error struct {
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload of %s failed with status %d: %s", e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("upload of %s failed: %s", e.Path, msg)
}

// Is makes every *Error match ErrUpload.
func (e *Error) Is(target error) bool {
	return target == ErrUpload
}

func (e *Error) Unwrap() error {
	return e.Err
}
