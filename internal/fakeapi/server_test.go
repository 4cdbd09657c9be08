package fakeapi

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"taskdesk/domain"
	"taskdesk/realtime"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	srv := New(append([]Option{WithLogger(logger)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseStreams()
		ts.Close()
	})
	return srv, ts
}

func call(t *testing.T, method, url, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func registerUser(t *testing.T, base, name string, role domain.Role) domain.AuthResponse {
	t.Helper()
	status, data := call(t, http.MethodPost, base+"/auth/register", "", domain.RegisterRequest{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "secret123",
		Role:     role,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, status, data)
	}
	var out domain.AuthResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode auth: %v", err)
	}
	return out
}

func TestErrorsUseMessageBody(t *testing.T) {
	_, ts := newTestServer(t)

	status, data := call(t, http.MethodGet, ts.URL+"/tasks", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	var body messageResponse
	if err := sonic.Unmarshal(data, &body); err != nil || body.Message != "missing authorization header" {
		t.Fatalf("unexpected body %s", data)
	}

	status, data = call(t, http.MethodPost, ts.URL+"/auth/register", "", map[string]string{"name": "x"})
	if status != http.StatusBadRequest || !strings.Contains(string(data), "email is required") {
		t.Fatalf("unexpected validation response %d %s", status, data)
	}
}

func TestTaskVisibilityByRole(t *testing.T) {
	_, ts := newTestServer(t)
	mgr := registerUser(t, ts.URL, "Maria", domain.RoleManager)
	emp := registerUser(t, ts.URL, "Eve", domain.RoleEmployee)
	other := registerUser(t, ts.URL, "Otto", domain.RoleEmployee)

	status, data := call(t, http.MethodPost, ts.URL+"/tasks", emp.Token, domain.TaskFields{
		Title: "nope", AssignedEmployee: emp.User.ID, DueDate: domain.NewDate(2024, 5, 1),
	})
	if status != http.StatusForbidden {
		t.Fatalf("employee created a task: %d %s", status, data)
	}

	status, data = call(t, http.MethodPost, ts.URL+"/tasks", mgr.Token, domain.TaskFields{
		Title: "Ship", AssignedEmployee: emp.User.ID, DueDate: domain.NewDate(2024, 5, 1),
	})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, data)
	}
	var created domain.Task
	if err := sonic.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if created.Status != domain.StatusPending || created.AssignedEmployee.Name != "Eve" || created.AssignedBy != mgr.User.ID {
		t.Fatalf("unexpected task %+v", created)
	}

	for _, tc := range []struct {
		token string
		want  int
	}{
		{mgr.Token, 1},
		{emp.Token, 1},
		{other.Token, 0},
	} {
		_, data := call(t, http.MethodGet, ts.URL+"/tasks", tc.token, nil)
		var list tasksResponse
		if err := sonic.Unmarshal(data, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list.Tasks) != tc.want {
			t.Fatalf("expected %d tasks, got %d", tc.want, len(list.Tasks))
		}
	}

	status, _ = call(t, http.MethodGet, ts.URL+"/tasks/"+created.ID, other.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for an invisible task, got %d", status)
	}

	status, data = call(t, http.MethodPatch, ts.URL+"/tasks/"+created.ID+"/status", emp.Token, map[string]string{"status": "done"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad status, got %d %s", status, data)
	}
	status, data = call(t, http.MethodPatch, ts.URL+"/tasks/"+created.ID+"/status", emp.Token, map[string]string{"status": "completed"})
	if status != http.StatusOK || !strings.HasPrefix(string(data), `{"task":`) {
		t.Fatalf("unexpected status response %d %s", status, data)
	}
}

func openStream(t *testing.T, ctx context.Context, base, token, sid string) *bufio.Reader {
	t.Helper()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/realtime/stream?sid="+sid, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open stream: status %d", resp.StatusCode)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return bufio.NewReader(resp.Body)
}

func readFrame(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestStreamDeliversAfterJoin(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	srv, ts := newTestServer(t, WithRedis(rc, "test"))
	mgr := registerUser(t, ts.URL, "Maria", domain.RoleManager)
	emp := registerUser(t, ts.URL, "Eve", domain.RoleEmployee)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mirror := rc.Subscribe(ctx, realtime.UserChannel("test", emp.User.ID))
	defer mirror.Close()
	if _, err := mirror.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	stream := openStream(t, ctx, ts.URL, emp.Token, "s1")
	status, data := call(t, http.MethodPost, ts.URL+"/realtime/emit", emp.Token, map[string]any{
		"sid": "s1", "event": "join", "data": map[string]string{"userId": emp.User.ID},
	})
	if status != http.StatusNoContent {
		t.Fatalf("join: %d %s", status, data)
	}
	if joins := srv.Joins(); len(joins) != 1 || joins[0] != emp.User.ID {
		t.Fatalf("unexpected joins %v", joins)
	}

	status, data = call(t, http.MethodPost, ts.URL+"/tasks", mgr.Token, domain.TaskFields{
		Title: "Ship", AssignedEmployee: emp.User.ID, DueDate: domain.NewDate(2024, 5, 1),
	})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, data)
	}

	event, payload := readFrame(t, stream)
	if event != domain.EventTaskAssigned {
		t.Fatalf("unexpected event %q", event)
	}
	var assigned domain.TaskAssigned
	if err := sonic.Unmarshal([]byte(payload), &assigned); err != nil || assigned.Title != "Ship" {
		t.Fatalf("unexpected payload %s (%v)", payload, err)
	}

	select {
	case msg := <-mirror.Channel():
		var env realtime.Envelope
		if err := sonic.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event != domain.EventTaskAssigned {
			t.Fatalf("unexpected redis envelope %s", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not mirrored to redis")
	}

	status, _ = call(t, http.MethodPost, ts.URL+"/realtime/emit", emp.Token, map[string]any{
		"sid": "missing", "event": "join", "data": map[string]string{"userId": emp.User.ID},
	})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown sid, got %d", status)
	}
}
