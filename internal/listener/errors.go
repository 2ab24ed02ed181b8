package listener

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBindTimeout bounds how long Start waits for the socket.
const DefaultBindTimeout = 5 * time.Second

// ErrNotLoopback is wrapped in a PortBindError when the address would bind
// beyond the loopback interface.
var ErrNotLoopback = errors.New("address is not loopback")

// PortBindError reports that the loopback listener could not acquire a
// socket in time.
type PortBindError struct {
	Addr string
	Err  error
}

func (e *PortBindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *PortBindError) Unwrap() error {
	return e.Err
}
