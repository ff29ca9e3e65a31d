package protocol

import "errors"

var (
	// ErrIncomplete signals that the buffer does not yet hold a whole unit.
	// It is not a failure: the caller waits for more bytes.
	ErrIncomplete = errors.New("incomplete frame")

	// ErrTruncated is returned when the stream ends in the middle of a unit.
	ErrTruncated = errors.New("stream closed mid-frame")

	// ErrFrameTooLarge is returned when a header announces more blocks than allowed.
	ErrFrameTooLarge = errors.New("frame exceeds block limit")
)
