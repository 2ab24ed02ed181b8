package coordinator

import (
	"errors"
	"fmt"

	"github.com/Dicklesworthstone/designer_auth_bridge/internal/channel"
)

// ErrCorrelation indicates an inbound terminal message could not be matched
// to exactly one pending attempt.
var ErrCorrelation = errors.New("correlation failed")

// CorrelationError describes a dropped inbound message.
type CorrelationError struct {
	Command channel.Command
	ID      string
	Pending int
}

func (e *CorrelationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s for unknown attempt %s (%d pending)", ErrCorrelation, e.Command, e.ID, e.Pending)
	}
	return fmt.Sprintf("%s: %s without id, %d attempts pending", ErrCorrelation, e.Command, e.Pending)
}

func (e *CorrelationError) Unwrap() error {
	return ErrCorrelation
}
