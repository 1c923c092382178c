package sentinel

import (
	"errors"
)

var (
	// ErrClientClosed is returned when the connection is gone
	ErrClientClosed = errors.New("client closed")

	// ErrRemote wraps an error reported by the broker
	ErrRemote = errors.New("broker error")
)
