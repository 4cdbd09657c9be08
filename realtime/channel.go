// Package realtime maintains the push connection that delivers task events
// to a signed-in user, with a bounded reconnection policy.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskdesk/domain"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultStableAfter       = time.Minute
)

// Options configure a Channel. Zero values select the defaults; a negative
// ReconnectAttempts disables reconnection.
type Options struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// StableAfter is how long a connection must stay up before the attempt
	// budget is restored.
	StableAfter time.Duration
	Logger      *log.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = defaultReconnectAttempts
	}
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.StableAfter <= 0 {
		o.StableAfter = defaultStableAfter
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return o
}

// Channel is a realtime connection for one user. Handlers run one at a time
// on the channel's goroutine, in arrival order.
type Channel struct {
	transport Transport
	opts      Options
	log       *log.Logger

	mu       sync.Mutex
	state    State
	stateCh  chan struct{}
	gen      uint64
	userID   string
	cancel   context.CancelFunc
	conn     Conn
	handlers map[string][]*Subscription
}

func NewChannel(transport Transport, opts Options) *Channel {
	opts = opts.withDefaults()
	return &Channel{
		transport: transport,
		opts:      opts,
		log:       opts.Logger,
		stateCh:   make(chan struct{}),
		handlers:  make(map[string][]*Subscription),
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the identity the channel joined with, or "" when idle.
func (c *Channel) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect starts connecting as userID and returns without waiting. It is a
// no-op while the channel is connecting or connected. The channel runs until
// Disconnect is called, ctx is cancelled or the reconnect budget is spent.
func (c *Channel) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoIdentity
	}
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.userID = userID
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	go c.run(loopCtx, gen, userID)
	return nil
}

// Disconnect closes the connection, stops any pending reconnect, removes
// every handler and returns the channel to Disconnected. It is idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.userID = ""
	for _, subs := range c.handlers {
		for _, s := range subs {
			s.removed.Store(true)
		}
	}
	c.handlers = make(map[string][]*Subscription)
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// Off removes every handler registered for ev.
func (c *Channel) Off(ev EventName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.handlers[ev.Name()]
	if !ok {
		return
	}
	for _, s := range subs {
		s.removed.Store(true)
	}
	delete(c.handlers, ev.Name())
}

// WaitState blocks until the channel is in state s or ctx is done.
func (c *Channel) WaitState(ctx context.Context, s State) error {
	for {
		c.mu.Lock()
		if c.state == s {
			c.mu.Unlock()
			return nil
		}
		changed := c.stateCh
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) add(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[s.event] = append(c.handlers[s.event], s)
}

func (c *Channel) remove(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.handlers[s.event]
	for i, existing := range subs {
		if existing == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(c.handlers, s.event)
		return
	}
	c.handlers[s.event] = subs
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.log.WithFields(log.Fields{"from": c.state.String(), "to": s.String()}).Debug("realtime.state")
	c.state = s
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	connectionState.Set(float64(s))
}

// setState changes the state unless the loop of generation gen is stale.
func (c *Channel) setState(gen uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.setStateLocked(s)
	return true
}

func (c *Channel) attach(gen uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	c.setStateLocked(Connected)
	return true
}

func (c *Channel) detach(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.conn = nil
	}
}

// finish returns the channel to Disconnected when the loop of generation gen
// exits on its own.
func (c *Channel) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil
	c.userID = ""
	c.setStateLocked(Disconnected)
}

func (c *Channel) run(ctx context.Context, gen uint64, userID string) {
	defer c.finish(gen)
	logger := c.log.WithField("user_id", userID)

	retries := 0
	for {
		conn, err := c.dial(ctx, userID)
		if err == nil {
			if !c.attach(gen, conn) {
				_ = conn.Close()
				return
			}
			logger.Info("realtime connected")
			connectedAt := time.Now()
			err = c.receive(ctx, gen, conn)
			c.detach(gen)
			_ = conn.Close()
			if time.Since(connectedAt) >= c.opts.StableAfter {
				retries = 0
			}
		}
		if ctx.Err() != nil {
			return
		}

		cerr, _ := err.(*ChannelError)
		if cerr == nil {
			cerr = &ChannelError{Op: "receive", Err: err}
		}
		logger.WithError(cerr).Warn("realtime connection lost")
		if !c.setState(gen, Connecting) {
			return
		}
		final := retries >= c.opts.ReconnectAttempts
		c.dispatch(gen, domain.EventDisconnect, domain.Disconnect{Reason: cerr.reason(), Err: cerr, Final: final})

		if final {
			logger.WithField("attempts", retries).Error("realtime reconnect attempts exhausted")
			return
		}
		retries++
		reconnectAttempts.Inc()
		logger.WithFields(log.Fields{"attempt": retries, "delay": c.opts.ReconnectDelay.String()}).Info("realtime reconnecting")

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// dial opens a connection and announces the user on it.
func (c *Channel) dial(ctx context.Context, userID string) (Conn, error) {
	conn, err := c.transport.Dial(ctx)
	if err != nil {
		return nil, &ChannelError{Op: "dial", Err: err}
	}
	payload, err := sonic.ConfigStd.Marshal(domain.Join{UserID: userID})
	if err != nil {
		_ = conn.Close()
		return nil, &ChannelError{Op: "join", Err: err}
	}
	if err := conn.Send(ctx, domain.EventJoin, payload); err != nil {
		_ = conn.Close()
		return nil, &ChannelError{Op: "join", Err: err}
	}
	return conn, nil
}

func (c *Channel) receive(ctx context.Context, gen uint64, conn Conn) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return &ChannelError{Op: "receive", Err: err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		eventsReceived.WithLabelValues(msg.Event).Inc()
		c.dispatch(gen, msg.Event, msg.Data)
	}
}

// dispatch hands payload to every handler registered for event. payload is
// either raw JSON or an already-typed value.
func (c *Channel) dispatch(gen uint64, event string, payload any) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	subs := append([]*Subscription(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, s := range subs {
		if s.removed.Load() {
			continue
		}
		if err := s.deliver(payload); err != nil {
			c.log.WithError(err).WithField("event", event).Warn("realtime event dropped")
		}
	}
}
