package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveJob is returned when an operation needs a job and there is none.
	ErrNoActiveJob = errors.New("no active job")

	// ErrNoResult is returned when the processed table is not available yet.
	ErrNoResult = errors.New("no processed result available")

	// ErrMissingStatusURL is returned when a job descriptor has no status URL.
	ErrMissingStatusURL = errors.New("job descriptor has no status url")
)

// UploadError reports that submitting a file failed.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PollingError reports a failed status query or an unrecognized response.
// Terminal errors stop polling; the rest are retried on the next tick.
type PollingError struct {
	StatusCode int
	Terminal   bool
	Err        error
}

func (e *PollingError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("status query failed (%s, http %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("status query failed (%s): %v", kind, e.Err)
}

func (e *PollingError) Unwrap() error { return e.Err }

// ResultRetrievalError reports that a completed job's CSV could not be
// downloaded or parsed. The job itself stays completed.
type ResultRetrievalError struct {
	Err error
}

func (e *ResultRetrievalError) Error() string {
	return fmt.Sprintf("result retrieval failed: %v", e.Err)
}

func (e *ResultRetrievalError) Unwrap() error { return e.Err }

// MalformedCsvError reports CSV text with no usable content.
type MalformedCsvError struct {
	Reason string
}

func (e *MalformedCsvError) Error() string {
	return "malformed csv: " + e.Reason
}

// MissingColumnError names a required column absent from the header row.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

// InvalidStateError reports an illegal state-machine transition.
type InvalidStateError struct {
	Op    string
	State JobState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s while %s", e.Op, e.State)
}

// IsTerminalPollingError reports whether err is a PollingError that must stop polling.
func IsTerminalPollingError(err error) bool {
	var pe *PollingError
	return errors.As(err, &pe) && pe.Terminal
}
