package realtime

import (
	"context"

	"github.com/bytedance/sonic"
)

// Transport opens connections to the realtime backend.
type Transport interface {
	// Dial opens a connection whose lifetime is bound to ctx.
	Dial(ctx context.Context) (Conn, error)
}

// Conn is a single live connection. Receive blocks until a message arrives
// or the connection fails; Close unblocks it.
type Conn interface {
	Send(ctx context.Context, event string, data []byte) error
	Receive() (Message, error)
	Close() error
}

// Message is one named event with its raw JSON payload.
type Message struct {
	Event string
	Data  []byte
}

// Envelope is the wire form of a message on transports that multiplex every
// event over one stream. SID is only set on client emits over SSE.
type Envelope struct {
	SID   string                 `json:"sid,omitempty"`
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// TokenSource provides the bearer token for transports that authenticate.
type TokenSource interface {
	Current() string
}
