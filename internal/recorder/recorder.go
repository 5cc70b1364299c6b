package recorder

import "fmt"

// Handle represents an open recording. Exactly one Handle may be open per
// Recorder at a time; enforcing that is the caller's responsibility.
type Handle interface {
	// Path returns the destination the recording is being written to.
	Path() string

	// Close stops capture and releases the underlying device. It returns a
	// *StopError if the recording was never started or is already released;
	// callers must treat that as non-fatal and proceed with cleanup.
	Close() error
}

// Recorder begins audio capture into device-specific destinations.
type Recorder interface {
	// Open begins capture into the given destination path. It returns a
	// *InitError if the underlying device or storage cannot be configured.
	Open(destination string) (Handle, error)
}

// InitError indicates the recorder hardware or destination storage could
// not be configured. Fatal to starting a session.
type InitError struct {
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("recorder init failed: %v", e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

// StopError indicates a recorder was closed when it was never started or
// already released. Non-fatal by contract.
type StopError struct {
	Cause error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("recorder stop failed: %v", e.Cause)
}

func (e *StopError) Unwrap() error {
	return e.Cause
}
