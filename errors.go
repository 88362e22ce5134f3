package mudcore

import "errors"

// ErrInvalidArgument is returned for malformed operator input: a bad IP
// literal, an MTU outside the allowed range, or a plaintext payload
// larger than the effective MTU.
var ErrInvalidArgument = errors.New("mudcore: invalid argument")

// ErrOutOfMemory is returned when a new path cannot be allocated.
var ErrOutOfMemory = errors.New("mudcore: allocation failed")

// ErrSocketError wraps a failure from the single UDP syscall Send or Recv
// makes per call.
var ErrSocketError = errors.New("mudcore: socket error")

// ErrNoPath is returned by Send when no primary path is left to schedule
// the datagram on and no backup path exists. Paths that are recovering
// may already have carried the datagram when this is returned.
var ErrNoPath = errors.New("mudcore: no path available")
