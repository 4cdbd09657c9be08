// Package session ties the token store, REST client, task store and realtime
// channel together for one signed-in user. It owns the single realtime
// channel a process may hold.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taskdesk/api"
	"taskdesk/auth"
	"taskdesk/domain"
	"taskdesk/realtime"
	"taskdesk/tasks"
)

// ErrNoUser is returned by the watch operations before the user is known.
var ErrNoUser = errors.New("session: no user loaded")

// Notifier receives the user-facing messages produced by realtime events.
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes messages through logrus.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(message string) {
	logger := n.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithField("component", "notifier").Info(message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

type Session struct {
	tokens    *auth.TokenStore
	client    *api.Client
	transport realtime.Transport
	rtOpts    realtime.Options
	notifier  Notifier
	log       *log.Logger

	mu      sync.Mutex
	store   *tasks.Store
	user    *domain.User
	channel *realtime.Channel
	subs    []*realtime.Subscription

	// fetchMu orders store mutations against the installation of fetched
	// task lists.
	fetchMu sync.Mutex
	fetches map[*fetch]struct{}
}

// fetch collects the store mutations applied while a task list request is
// in flight. They are replayed over the response so a list read before an
// event arrived cannot undo it.
type fetch struct {
	replay []func(*tasks.Store) bool
}

type Option func(*Session)

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRealtimeOptions configures the channel created by the session.
func WithRealtimeOptions(o realtime.Options) Option {
	return func(s *Session) { s.rtOpts = o }
}

// New creates a session. transport may be nil when realtime is not used.
func New(tokens *auth.TokenStore, client *api.Client, transport realtime.Transport, opts ...Option) *Session {
	s := &Session{
		tokens:    tokens,
		client:    client,
		transport: transport,
		store:     tasks.NewStore(),
		log:       log.StandardLogger(),
		fetches:   make(map[*fetch]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.log}
	}
	if s.rtOpts.Logger == nil {
		s.rtOpts.Logger = s.log
	}
	return s
}

// Tasks returns the task store backing the current view.
func (s *Session) Tasks() *tasks.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

func (s *Session) Client() *api.Client { return s.client }

// User returns the user remembered by the last login, register or load.
func (s *Session) User() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Session) remember(u domain.User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

func (s *Session) Register(ctx context.Context, in domain.RegisterRequest) (domain.User, error) {
	out, err := s.client.Register(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	s.remember(out.User)
	return out.User, nil
}

func (s *Session) Login(ctx context.Context, in domain.Credentials) (domain.User, error) {
	out, err := s.client.Login(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	s.remember(out.User)
	return out.User, nil
}

// Load fetches the profile and the task list concurrently. The task store is
// only touched when both succeed.
func (s *Session) Load(ctx context.Context) (domain.User, error) {
	var (
		user domain.User
		list []domain.Task
	)
	f := s.beginFetch()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		user, err = s.client.Profile(gctx)
		return err
	})
	g.Go(func() (err error) {
		list, err = s.client.Tasks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.endFetch(f, nil, false)
		return domain.User{}, fmt.Errorf("load: %w", err)
	}
	s.endFetch(f, list, true)
	s.remember(user)
	return user, nil
}

// LoadManager is Load for the manager view, which also needs the employees
// tasks can be assigned to.
func (s *Session) LoadManager(ctx context.Context) (domain.User, []domain.Employee, error) {
	var (
		user      domain.User
		list      []domain.Task
		employees []domain.Employee
	)
	f := s.beginFetch()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		list, err = s.client.Tasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		employees, err = s.client.Employees(gctx)
		return err
	})
	g.Go(func() (err error) {
		user, err = s.client.Profile(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.endFetch(f, nil, false)
		return domain.User{}, nil, fmt.Errorf("load manager view: %w", err)
	}
	s.endFetch(f, list, true)
	s.remember(user)
	return user, employees, nil
}

func (s *Session) beginFetch() *fetch {
	f := &fetch{}
	s.fetchMu.Lock()
	s.fetches[f] = struct{}{}
	s.fetchMu.Unlock()
	return f
}

// endFetch stops recording for f. When ok, list replaces the store contents
// and the mutations recorded since beginFetch are applied on top.
func (s *Session) endFetch(f *fetch, list []domain.Task, ok bool) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	delete(s.fetches, f)
	if !ok {
		return
	}
	store := s.Tasks()
	store.ReplaceAll(list)
	for _, fn := range f.replay {
		fn(store)
	}
	if len(f.replay) > 0 {
		s.log.WithField("replayed", len(f.replay)).Debug("reapplied changes made during fetch")
	}
}

// apply runs fn against the store and records it for every fetch in flight.
func (s *Session) apply(fn func(*tasks.Store) bool) bool {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	for f := range s.fetches {
		f.replay = append(f.replay, fn)
	}
	return fn(s.Tasks())
}

func (s *Session) channelLocked() (*realtime.Channel, error) {
	if s.channel != nil {
		return s.channel, nil
	}
	if s.transport == nil {
		return nil, errors.New("session: no realtime transport configured")
	}
	s.channel = realtime.NewChannel(s.transport, s.rtOpts)
	return s.channel, nil
}

// Channel returns the session's realtime channel, connecting it as userID if
// it is idle. Every call returns the same channel. ctx bounds the lifetime of
// the connection.
func (s *Session) Channel(ctx context.Context, userID string) (*realtime.Channel, error) {
	s.mu.Lock()
	ch, err := s.channelLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ch.Connect(ctx, userID); err != nil {
		return nil, err
	}
	return ch, nil
}

// WatchEmployee keeps the task store in sync with the events pushed to the
// loaded employee.
func (s *Session) WatchEmployee(ctx context.Context) (*realtime.Channel, error) {
	return s.watch(ctx, func(ch *realtime.Channel) []*realtime.Subscription {
		return []*realtime.Subscription{
			realtime.On(ch, realtime.TaskAssigned, s.onAssigned),
			realtime.On(ch, realtime.TaskUpdated, s.onUpdated),
			realtime.On(ch, realtime.TaskCompleted, s.onCompleted),
			realtime.On(ch, realtime.Disconnect, s.onDisconnect),
		}
	})
}

// WatchManager follows completions of the tasks the loaded manager assigned.
func (s *Session) WatchManager(ctx context.Context) (*realtime.Channel, error) {
	return s.watch(ctx, func(ch *realtime.Channel) []*realtime.Subscription {
		return []*realtime.Subscription{
			realtime.On(ch, realtime.TaskCompleted, s.onCompleted),
			realtime.On(ch, realtime.Disconnect, s.onDisconnect),
		}
	})
}

func (s *Session) watch(ctx context.Context, subscribe func(*realtime.Channel) []*realtime.Subscription) (*realtime.Channel, error) {
	s.mu.Lock()
	if s.user == nil || s.user.ID == "" {
		s.mu.Unlock()
		return nil, ErrNoUser
	}
	userID := s.user.ID
	ch, err := s.channelLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	// handlers go in before connecting so no early event is missed
	s.subs = subscribe(ch)
	s.mu.Unlock()

	if err := ch.Connect(ctx, userID); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Session) titleOf(id, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if t, ok := s.Tasks().Get(id); ok {
		return t.Title
	}
	return id
}

func (s *Session) onAssigned(ev domain.TaskAssigned) {
	t := ev.Task
	if s.apply(func(st *tasks.Store) bool { return st.InsertOrAppend(t) }) {
		s.notifier.Notify("New task: " + ev.Title)
	}
}

func (s *Session) onUpdated(ev domain.TaskUpdated) {
	s.apply(func(st *tasks.Store) bool { return st.ApplyPartial(ev.TaskID, ev.Updates) })
	s.notifier.Notify("Updated: " + s.titleOf(ev.TaskID, ev.Title))
}

func (s *Session) onCompleted(ev domain.TaskCompleted) {
	s.apply(func(st *tasks.Store) bool { return st.MarkCompleted(ev.TaskID) })
	s.notifier.Notify("Completed: " + s.titleOf(ev.TaskID, ev.Title))
}

func (s *Session) onDisconnect(ev domain.Disconnect) {
	logger := s.log.WithFields(log.Fields{"reason": ev.Reason, "final": ev.Final})
	if ev.Err == nil {
		// sent by the server; the transport reports the actual drop
		logger.Debug("realtime disconnect requested by server")
		return
	}
	logger.Debug("realtime disconnect")
	if ev.Final {
		s.notifier.Notify("Connection lost.")
		return
	}
	s.notifier.Notify("Connection lost. Reconnecting...")
}

func (s *Session) CreateTask(ctx context.Context, fields domain.TaskFields) (domain.Task, error) {
	t, err := s.client.CreateTask(ctx, fields)
	if err != nil {
		return domain.Task{}, err
	}
	s.apply(func(st *tasks.Store) bool { return st.InsertOrAppend(t) })
	return t, nil
}

// UpdateTask sends patch and merges the server's copy of the task. When the
// server confirms without returning the task, patch itself is merged.
func (s *Session) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := s.client.UpdateTask(ctx, id, patch)
	switch {
	case errors.Is(err, api.ErrNoTask):
		return s.applyLocal(id, patch), nil
	case err != nil:
		return domain.Task{}, err
	}
	merged := domain.PatchFromTask(t)
	s.apply(func(st *tasks.Store) bool { return st.ApplyPartial(id, merged) })
	return t, nil
}

func (s *Session) SetStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	t, err := s.client.UpdateTaskStatus(ctx, id, status)
	switch {
	case errors.Is(err, api.ErrNoTask):
		return s.applyLocal(id, domain.StatusPatch(status)), nil
	case err != nil:
		return domain.Task{}, err
	}
	applied := t.Status
	if applied == "" {
		applied = status
	}
	patch := domain.StatusPatch(applied)
	s.apply(func(st *tasks.Store) bool { return st.ApplyPartial(id, patch) })
	return t, nil
}

// applyLocal merges patch into the stored task and returns the result. An
// unknown id yields a task carrying only the id and the patched fields.
func (s *Session) applyLocal(id string, patch domain.TaskPatch) domain.Task {
	s.apply(func(st *tasks.Store) bool { return st.ApplyPartial(id, patch) })
	if t, ok := s.Tasks().Get(id); ok {
		return t
	}
	t := domain.Task{ID: id}
	patch.ApplyTo(&t)
	return t
}

func (s *Session) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.client.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.apply(func(st *tasks.Store) bool { return st.Remove(id) })
	return nil
}

// Refresh reloads the task list from the server. Realtime changes applied
// while the request is in flight are kept.
func (s *Session) Refresh(ctx context.Context) error {
	f := s.beginFetch()
	list, err := s.client.Tasks(ctx)
	if err != nil {
		s.endFetch(f, nil, false)
		return err
	}
	s.endFetch(f, list, true)
	return nil
}

// userID returns the remembered user id, fetching the profile when no user
// is known yet.
func (s *Session) userID(ctx context.Context) (string, error) {
	if u, ok := s.User(); ok && u.ID != "" {
		return u.ID, nil
	}
	u, err := s.client.Profile(ctx)
	if err != nil {
		return "", err
	}
	s.remember(u)
	return u.ID, nil
}

// UpdateProfile changes the signed-in user's profile.
func (s *Session) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.User, error) {
	id, err := s.userID(ctx)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.client.UpdateProfile(ctx, id, patch)
	if err != nil {
		return domain.User{}, err
	}
	if u.ID == "" {
		u.ID = id
	}
	s.remember(u)
	return u, nil
}

// DeleteProfile deletes the signed-in user's account and logs out.
func (s *Session) DeleteProfile(ctx context.Context) error {
	id, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteProfile(ctx, id); err != nil {
		return err
	}
	return s.Logout(ctx)
}

// Close removes the session's handlers and disconnects the channel.
func (s *Session) Close() {
	s.mu.Lock()
	subs, ch := s.subs, s.channel
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if ch != nil {
		ch.Disconnect()
	}
}

// Logout closes the session, forgets the token and user and starts an empty
// task store.
func (s *Session) Logout(ctx context.Context) error {
	s.Close()
	s.mu.Lock()
	s.user = nil
	s.store = tasks.NewStore()
	s.mu.Unlock()
	if s.tokens == nil {
		return nil
	}
	return s.tokens.Clear(ctx)
}
