package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
)

func TestFileBackendSurvivesReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "token")

	first, err := NewTokenStore(ctx, FileBackend{Path: path}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if got := first.Current(); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	if err := first.Save(ctx, "abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := first.Current(); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %v", perm)
	}

	reloaded, err := NewTokenStore(ctx, FileBackend{Path: path}, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Current(); got != "abc" {
		t.Fatalf("expected abc after reload, got %q", got)
	}

	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := reloaded.Current(); got != "" {
		t.Fatalf("expected cleared token, got %q", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, got %v", err)
	}
	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestRedisBackendSurvivesReload(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	backend := NewRedisBackend(client, "session:token", time.Hour)
	store, err := NewTokenStore(ctx, backend, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(ctx, "abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("session:token"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	reloaded, err := NewTokenStore(ctx, NewRedisBackend(client, "session:token", time.Hour), nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Current(); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if err := reloaded.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("session:token") {
		t.Fatal("expected key deleted")
	}
}

type failingBackend struct{ MemoryBackend }

func (*failingBackend) Store(context.Context, string) error { return errors.New("disk full") }

func TestSaveFailureKeepsPreviousToken(t *testing.T) {
	ctx := context.Background()
	store, err := NewTokenStore(ctx, &failingBackend{}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(ctx, "abc"); err == nil {
		t.Fatal("expected save error")
	}
	if got := store.Current(); got != "" {
		t.Fatalf("token must not change on failed save, got %q", got)
	}
}

func TestSubject(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sub, err := Subject(signed)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if sub != "user-42" {
		t.Fatalf("expected user-42, got %s", sub)
	}

	if _, err := Subject("not-a-jwt"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Subject(""); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("expected ErrNoSubject, got %v", err)
	}
}
