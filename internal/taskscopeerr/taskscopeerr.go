// Package taskscopeerr defines the error taxonomy of SPEC_FULL.md §7 as
// sentinel errors callers can match with errors.Is, following the
// teacher's internal/rpc/errors.go convention of one sentinel per failure
// category rather than string-matched messages.
package taskscopeerr

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a startup-time configuration problem: an invalid
// target URI, a bad duration string, an unknown lint name. Fatal for the
// core — the only category that is.
var ErrConfiguration = errors.New("taskscope: configuration error")

// ErrTransport marks a connection-layer failure: refused connection, TLS
// handshake failure, stream closed mid-stream. Recovered locally by
// internal/connfsm; never fatal.
var ErrTransport = errors.New("taskscope: transport error")

// ErrProtocol marks a malformed or incomplete wire message: missing
// required fields, an unknown metadata id, a malformed histogram. The
// offending record is dropped and counted; the stream continues.
var ErrProtocol = errors.New("taskscope: protocol error")

// ErrCapacity marks a bounded-buffer overflow: the ingress queue filling
// up while paused or during a burst. The oldest entry is dropped and
// counted; never fatal.
var ErrCapacity = errors.New("taskscope: capacity exceeded")

// Wrap attaches one of the sentinel categories to a lower-level error so
// callers can errors.Is(err, taskscopeerr.ErrTransport) without the
// caller needing to know the underlying cause.
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// Config reports a configuration error with the offending field named,
// always wrapping ErrConfiguration.
func Config(field string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrConfiguration, field, cause)
}
