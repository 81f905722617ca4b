package automation

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means the browser was sent back to a login or MFA page.
	ErrAuthRequired = errors.New("authentication required")
	// ErrArtifactNotFound means the download sequence finished but no file appeared in time.
	ErrArtifactNotFound = errors.New("backup artifact not found")
	// ErrDriver marks failures of the browser or its driver process.
	ErrDriver = errors.New("automation driver error")
	// ErrPollTimeout is returned by Poller when the condition never held.
	ErrPollTimeout = errors.New("poll timed out")
)

// DriverError wraps a browser failure with the step that produced it.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDriver) match any DriverError.
func (e *DriverError) Is(target error) bool {
	return target == ErrDriver
}

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
