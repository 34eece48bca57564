package web

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// shutdownError is a type used to help with the graceful termination of the
// service.
type shutdownError struct {
	Message string
}

// NewShutdownError returns an error that causes the framework to signal a
// graceful shutdown.
func NewShutdownError(message string) error {
	return &shutdownError{message}
}

// Error is the implementation of the error interface.
func (se *shutdownError) Error() string {
	return se.Message
}

// IsShutdown checks to see if the shutdown error is contained in the
// specified error value.
func IsShutdown(err error) bool {
	var se *shutdownError
	return errors.As(err, &se)
}

// validateShutdown checks the error for special conditions that do not
// warrant an actual shutdown by the system.
func validateShutdown(err error) bool {

	// Ignore syscall.EPIPE and syscall.ECONNRESET errors which occurs when a
	// write operation happens on the http.ResponseWriter that has simultaneously
	// been disconnected by the client (TCP connections is broken). For instance,
	// when large amounts of data is being written or streamed to the client.
	switch {
	case errors.Is(err, syscall.EPIPE):
		return false

	case errors.Is(err, syscall.ECONNRESET):
		return false
	}

	// Check for the error that happens when a websocket handler loses the
	// connection out from under it.
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "websocket: close") {
		return false
	}

	return true
}
