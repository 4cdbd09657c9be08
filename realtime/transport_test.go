package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskdesk/domain"
)

type staticToken string

func (s staticToken) Current() string { return string(s) }

// sseBackend is a minimal stream endpoint: it records emits and lets the test
// push raw frames to the open stream.
type sseBackend struct {
	mu     sync.Mutex
	auth   []string
	sids   []string
	emits  []Envelope
	frames chan string
}

func (b *sseBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.mu.Unlock()

	switch r.URL.Path {
	case ssePath:
		b.mu.Lock()
		b.sids = append(b.sids, r.URL.Query().Get("sid"))
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ":ok\n\n")
		flusher.Flush()
		for {
			select {
			case f, ok := <-b.frames:
				if !ok {
					return
				}
				fmt.Fprint(w, f)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	case emitPath:
		body, _ := io.ReadAll(r.Body)
		var env Envelope
		if err := sonic.Unmarshal(body, &env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.emits = append(b.emits, env)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func TestSSETransportRoundTrip(t *testing.T) {
	backend := &sseBackend{frames: make(chan string, 8)}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	tr := NewSSETransport(srv.URL+"/", staticToken("tok"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := tr.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, domain.EventJoin, []byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	backend.mu.Lock()
	if len(backend.emits) != 1 || backend.emits[0].Event != domain.EventJoin || backend.emits[0].SID != backend.sids[0] {
		t.Fatalf("unexpected emits %+v (sids %v)", backend.emits, backend.sids)
	}
	if string(backend.emits[0].Data) != `{"userId":"u1"}` {
		t.Fatalf("unexpected join data %s", backend.emits[0].Data)
	}
	for _, h := range backend.auth {
		if h != "Bearer tok" {
			t.Fatalf("unexpected auth header %q", h)
		}
	}
	backend.mu.Unlock()

	backend.frames <- "event: task:completed\ndata: {\"taskId\":\"t1\",\n: comment\ndata: \"title\":\"A\"}\n\n"
	backend.frames <- `data: {"event":"task:updated","data":{"taskId":"t2","updates":{}}}` + "\n\n"

	msg, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Event != domain.EventTaskCompleted || string(msg.Data) != "{\"taskId\":\"t1\",\n\"title\":\"A\"}" {
		t.Fatalf("unexpected message %q %q", msg.Event, msg.Data)
	}
	var done domain.TaskCompleted
	if err := sonic.Unmarshal(msg.Data, &done); err != nil || done.Title != "A" {
		t.Fatalf("decode multi-line data: %+v %v", done, err)
	}

	msg, err = conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Event != domain.EventTaskUpdated || string(msg.Data) != `{"taskId":"t2","updates":{}}` {
		t.Fatalf("unexpected envelope message %q %q", msg.Event, msg.Data)
	}

	close(backend.frames)
	if _, err := conn.Receive(); err == nil {
		t.Fatal("expected error after stream end")
	}
}

func TestSSETransportRejectedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing authorization header", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewSSETransport(srv.URL, nil, nil)
	if _, err := tr.Dial(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestRedisTransportDeliversUserEvents(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	joins := rc.Subscribe(ctx, JoinChannel("test"))
	defer joins.Close()
	if _, err := joins.Receive(ctx); err != nil {
		t.Fatalf("subscribe joins: %v", err)
	}

	ch := NewChannel(NewRedisTransport(rc, "test"), Options{Logger: quietLogger()})
	defer ch.Disconnect()
	got := make(chan domain.TaskAssigned, 1)
	On(ch, TaskAssigned, func(ev domain.TaskAssigned) { got <- ev })

	if err := ch.Connect(ctx, "u1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitState(t, ch, Connected)

	select {
	case msg := <-joins.Channel():
		var env Envelope
		if err := sonic.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatalf("decode join: %v", err)
		}
		if env.Event != domain.EventJoin || string(env.Data) != `{"userId":"u1"}` {
			t.Fatalf("unexpected join %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join not published")
	}

	payload := `{"event":"task:assigned","data":{"_id":"t1","title":"Ship","status":"pending","dueDate":"2024-05-01T00:00:00.000Z"}}`
	if err := rc.Publish(ctx, UserChannel("test", "u2"), payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := rc.Publish(ctx, UserChannel("test", "u1"), payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-got:
		if ev.ID != "t1" || ev.Title != "Ship" || ev.DueDate.String() != "2024-05-01" {
			t.Fatalf("unexpected task %+v", ev.Task)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisTransportDialFailure(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rc := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	defer rc.Close()
	m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisTransport(rc, "").Dial(ctx); err == nil {
		t.Fatal("expected dial error against a closed server")
	}
}

func TestRedisReceiveBeforeJoin(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	conn, err := NewRedisTransport(rc, "").Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Receive(); !errors.Is(err, errNotJoined) {
		t.Fatalf("expected errNotJoined, got %v", err)
	}
}
