package realtime

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoIdentity is returned by Connect when no user id is given.
	ErrNoIdentity = errors.New("realtime: user id is required to connect")

	errNotJoined = errors.New("realtime: connection has not joined a room")
)

// ChannelError is a realtime connect or transport failure.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// reason maps a failure to the reason reported in disconnect events.
func (e *ChannelError) reason() string {
	switch {
	case e.Op == "dial" || e.Op == "join":
		return "connect error"
	case errors.Is(e.Err, io.EOF), errors.Is(e.Err, io.ErrUnexpectedEOF):
		return "transport close"
	default:
		return "transport error"
	}
}
