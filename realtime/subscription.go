package realtime

import (
	"fmt"
	"sync/atomic"

	"github.com/bytedance/sonic"

	"taskdesk/domain"
)

// EventName identifies an event independently of its payload type.
type EventName interface {
	Name() string
}

// Event is a typed event descriptor. The payload of every message carrying
// the event decodes into T.
type Event[T any] struct {
	name string
}

func (e Event[T]) Name() string { return e.name }

var (
	TaskAssigned  = Event[domain.TaskAssigned]{name: domain.EventTaskAssigned}
	TaskUpdated   = Event[domain.TaskUpdated]{name: domain.EventTaskUpdated}
	TaskCompleted = Event[domain.TaskCompleted]{name: domain.EventTaskCompleted}
	Disconnect    = Event[domain.Disconnect]{name: domain.EventDisconnect}
)

// Subscription is a registered handler. It stays active until Unsubscribe,
// Channel.Off for its event, or Channel.Disconnect.
type Subscription struct {
	event   string
	ch      *Channel
	deliver func(payload any) error
	removed atomic.Bool
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s.removed.Swap(true) {
		return
	}
	s.ch.remove(s)
}

// On registers fn for every message carrying ev on c.
func On[T any](c *Channel, ev Event[T], fn func(T)) *Subscription {
	sub := &Subscription{
		event: ev.name,
		ch:    c,
		deliver: func(payload any) error {
			switch v := payload.(type) {
			case T:
				fn(v)
				return nil
			case []byte:
				var out T
				if err := sonic.ConfigStd.Unmarshal(v, &out); err != nil {
					return fmt.Errorf("decode %s: %w", ev.name, err)
				}
				fn(out)
				return nil
			default:
				return fmt.Errorf("decode %s: unexpected payload %T", ev.name, payload)
			}
		},
	}
	c.add(sub)
	return sub
}
