package network

import "errors"

var (
	// ErrCloseConnection may be returned by a Handler to close the connection
	// once every packet queued so far has been flushed.
	ErrCloseConnection = errors.New("close connection requested")

	// ErrConnectionClosed is returned by Send after shutdown has started.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendTimeout is returned by Send when the outbound queue stays full for the write timeout.
	ErrSendTimeout = errors.New("send queue timeout")

	// ErrIdleTimeout ends a connection that sent nothing for the read timeout.
	ErrIdleTimeout = errors.New("idle timeout")

	// ErrTooManyChecksumFailures ends a connection after repeated corrupt headers.
	ErrTooManyChecksumFailures = errors.New("too many header checksum failures")
)
