// Package fakeapi is an in-memory implementation of the task backend: the
// REST endpoints and the realtime stream. It backs the integration tests and
// the `taskctl fake-server` command.
package fakeapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskdesk/realtime"
)

const defaultSecret = "taskdesk-fake-secret"

// Server is the fake backend.
type Server struct {
	echo   *echo.Echo
	state  *state
	hub    *hub
	log    *log.Logger
	secret []byte
}

type Option func(*Server)

func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRedis mirrors every published event onto redis pub/sub so clients
// using the redis transport receive them too.
func WithRedis(client redis.UniversalClient, prefix string) Option {
	return func(s *Server) {
		if prefix == "" {
			prefix = realtime.DefaultRedisPrefix
		}
		s.hub.redis = client
		s.hub.prefix = prefix
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		state:  newState(),
		log:    log.StandardLogger(),
		secret: []byte(defaultSecret),
	}
	s.hub = newHub()
	for _, opt := range opts {
		opt(s)
	}
	s.hub.log = s.log

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.Validator = newEchoValidator()
	e.HTTPErrorHandler = newHTTPErrorHandler(s.log)
	e.Use(middleware.Recover())
	e.Use(requestLogger(s.log))
	s.echo = e
	s.register()
	return s
}

func (s *Server) register() {
	authed := requireUser(s.secret, s.state)

	s.echo.POST("/auth/register", register(s.state, s.secret))
	s.echo.POST("/auth/login", login(s.state, s.secret))
	s.echo.GET("/auth/profile", getProfile(s.state), authed)
	s.echo.PUT("/auth/profile/:id", updateProfile(s.state), authed)
	s.echo.DELETE("/auth/profile/:id", deleteProfile(s.state), authed)
	s.echo.GET("/auth/employees", getEmployees(s.state), authed)

	s.echo.POST("/tasks", createTask(s.state, s.hub), authed)
	s.echo.GET("/tasks", getTasks(s.state), authed)
	s.echo.GET("/tasks/:id", getTask(s.state), authed)
	s.echo.PUT("/tasks/:id", updateTask(s.state, s.hub), authed)
	s.echo.DELETE("/tasks/:id", deleteTask(s.state), authed)
	s.echo.PATCH("/tasks/:id/status", updateTaskStatus(s.state, s.hub), authed)

	s.echo.GET("/realtime/stream", streamEvents(s.hub), authed)
	s.echo.POST("/realtime/emit", emitEvent(s.hub), authed)
	s.echo.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

// Handler exposes the server for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.echo.Shutdown(ctx)
}

// Publish sends event to every stream joined as userID.
func (s *Server) Publish(ctx context.Context, userID, event string, payload any) error {
	return s.hub.publish(ctx, userID, event, payload)
}

// Joins returns the user ids announced by clients, in arrival order.
func (s *Server) Joins() []string { return s.hub.joinedUsers() }

// CloseStreams ends every open stream, as a server restart would.
func (s *Server) CloseStreams() { s.hub.closeAll() }

// Token issues a token for an existing user.
func (s *Server) Token(userID string) (string, error) {
	acc, ok := s.state.account(userID)
	if !ok {
		return "", errUserNotFound
	}
	return issueToken(s.secret, acc.user)
}
