package fakeapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskdesk/domain"
	"taskdesk/realtime"
)

const keepAliveInterval = 30 * time.Second

type frame struct {
	event string
	data  []byte
}

// stream is one open event stream. It receives nothing until a client joins
// it to a user's room.
type stream struct {
	sid    string
	user   string
	frames chan frame
	done   chan struct{}
	once   sync.Once
}

func (s *stream) close() {
	s.once.Do(func() { close(s.done) })
}

type hub struct {
	log *log.Logger

	mu      sync.Mutex
	streams map[string]*stream
	joins   []string

	redis  redis.UniversalClient
	prefix string
}

func newHub() *hub {
	return &hub{streams: make(map[string]*stream)}
}

func (h *hub) open(sid string) (*stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.streams[sid]; exists {
		return nil, false
	}
	s := &stream{sid: sid, frames: make(chan frame, 16), done: make(chan struct{})}
	h.streams[sid] = s
	return s, true
}

func (h *hub) drop(s *stream) {
	h.mu.Lock()
	if h.streams[s.sid] == s {
		delete(h.streams, s.sid)
	}
	h.mu.Unlock()
	s.close()
}

func (h *hub) join(sid, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[sid]
	if !ok {
		return false
	}
	s.user = userID
	h.joins = append(h.joins, userID)
	return true
}

func (h *hub) joinedUsers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.joins...)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[string]*stream)
	h.mu.Unlock()
	for _, s := range streams {
		s.close()
	}
}

func (h *hub) publish(ctx context.Context, userID, event string, payload any) error {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return err
	}
	h.mu.Lock()
	for _, s := range h.streams {
		if s.user != userID {
			continue
		}
		select {
		case s.frames <- frame{event: event, data: data}:
		default:
			h.log.WithFields(log.Fields{"sid": s.sid, "event": event}).Warn("stream buffer full, event dropped")
		}
	}
	h.mu.Unlock()

	if h.redis == nil {
		return nil
	}
	env, err := sonic.ConfigStd.Marshal(realtime.Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, realtime.UserChannel(h.prefix, userID), env).Err()
}

func (h *hub) publishLogged(ctx context.Context, userID, event string, payload any) {
	if err := h.publish(ctx, userID, event, payload); err != nil {
		h.log.WithError(err).WithFields(log.Fields{"user_id": userID, "event": event}).Error("publish failed")
	}
}

func streamEvents(h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		sid := c.QueryParam("sid")
		if sid == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "sid is required")
		}
		s, ok := h.open(sid)
		if !ok {
			return echo.NewHTTPError(http.StatusConflict, "sid already in use")
		}
		defer h.drop(s)

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.WriteHeader(http.StatusOK)
		if _, err := res.Write([]byte(":ok\n\n")); err != nil {
			return nil
		}
		res.Flush()

		ctx := c.Request().Context()
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case f := <-s.frames:
				if err := writeFrame(res, f); err != nil {
					return nil
				}
				res.Flush()
			case <-ticker.C:
				if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				res.Flush()
			case <-s.done:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func writeFrame(res *echo.Response, f frame) error {
	buf := make([]byte, 0, len(f.event)+len(f.data)+16)
	buf = append(buf, "event: "...)
	buf = append(buf, f.event...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, f.data...)
	buf = append(buf, "\n\n"...)
	_, err := res.Write(buf)
	return err
}

func emitEvent(h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		var env realtime.Envelope
		if err := c.Bind(&env); err != nil {
			return err
		}
		if env.SID == "" || env.Event == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "sid and event are required")
		}
		if env.Event != domain.EventJoin {
			h.log.WithField("event", env.Event).Debug("ignoring client event")
			return c.NoContent(http.StatusNoContent)
		}
		var join domain.Join
		if err := sonic.ConfigStd.Unmarshal(env.Data, &join); err != nil || join.UserID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "join requires userId")
		}
		if !h.join(env.SID, join.UserID) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown sid")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
