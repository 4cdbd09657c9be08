package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskdesk/domain"
)

const DefaultRedisPrefix = "taskdesk"

// RedisTransport exchanges events over redis pub/sub. Joining publishes the
// join envelope on <prefix>:join and subscribes to <prefix>:user:<userId>.
type RedisTransport struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTransport(client redis.UniversalClient, prefix string) *RedisTransport {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisTransport{client: client, prefix: prefix}
}

// UserChannel is the pub/sub channel events for userID are published on.
func UserChannel(prefix, userID string) string {
	return prefix + ":user:" + userID
}

// JoinChannel is the pub/sub channel join envelopes are published on.
func JoinChannel(prefix string) string {
	return prefix + ":join"
}

func (t *RedisTransport) Dial(ctx context.Context) (Conn, error) {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisConn{transport: t, ctx: ctx}, nil
}

type redisConn struct {
	transport *RedisTransport
	ctx       context.Context

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

func (c *redisConn) Send(ctx context.Context, event string, data []byte) error {
	t := c.transport
	if event == domain.EventJoin {
		var join domain.Join
		if err := sonic.ConfigStd.Unmarshal(data, &join); err != nil {
			return fmt.Errorf("decode join: %w", err)
		}
		if err := c.subscribe(ctx, UserChannel(t.prefix, join.UserID)); err != nil {
			return err
		}
		return c.publish(ctx, JoinChannel(t.prefix), event, data)
	}
	return c.publish(ctx, t.prefix+":events", event, data)
}

func (c *redisConn) subscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return redis.ErrClosed
	}
	if c.pubsub != nil {
		return c.pubsub.Subscribe(ctx, channel)
	}
	ps := c.transport.client.Subscribe(c.ctx, channel)
	// wait for the confirmation so nothing published after join is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	c.pubsub = ps
	return nil
}

func (c *redisConn) publish(ctx context.Context, channel, event string, data []byte) error {
	payload, err := sonic.ConfigStd.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.transport.client.Publish(ctx, channel, payload).Err()
}

func (c *redisConn) Receive() (Message, error) {
	c.mu.Lock()
	ps := c.pubsub
	c.mu.Unlock()
	if ps == nil {
		return Message{}, errNotJoined
	}
	for {
		msg, err := ps.ReceiveMessage(c.ctx)
		if err != nil {
			return Message{}, err
		}
		var env Envelope
		if err := sonic.ConfigStd.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event == "" {
			continue
		}
		return Message{Event: env.Event, Data: env.Data}, nil
	}
}

func (c *redisConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pubsub == nil {
		return nil
	}
	return c.pubsub.Close()
}
