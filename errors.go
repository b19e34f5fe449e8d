package monitor

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName   = errors.New("metric name already registered")
	ErrInvalidName     = errors.New("invalid metric name")
	ErrNilMetric       = errors.New("nil metric")
	ErrNotInitialized  = errors.New("monitor system not initialized")
	ErrBackendConflict = errors.New("carbon address and remote write url are mutually exclusive")
)

// ConnectionError reports that the carbon backend could not be reached.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed or partial write to the carbon backend.
// Written is the number of bytes of the failed batch that were accepted.
type WriteError struct {
	Addr    string
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s (%d bytes written): %v", e.Addr, e.Written, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
