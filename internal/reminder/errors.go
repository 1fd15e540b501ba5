package reminder

import (
	"errors"
	"fmt"
)

// ErrPermissionRequired is reported when the platform cannot schedule exact
// triggers. The user has to grant the capability before reminders work.
var ErrPermissionRequired = errors.New("exact scheduling permission required")

// MalformedInputError reports an appointment whose date or time cannot be
// turned into a reminder instant.
type MalformedInputError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed reminder %s %q", e.Field, e.Value)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a failure from the notification delivery layer.
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification delivery %s: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
