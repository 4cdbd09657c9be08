package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskdesk/api"
	"taskdesk/auth"
	"taskdesk/config"
	"taskdesk/realtime"
	"taskdesk/session"
)

// app is everything a command needs to talk to the backend.
type app struct {
	cfg     *config.Config
	tokens  *auth.TokenStore
	client  *api.Client
	session *session.Session
	redis   *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, opts ...session.Option) (*app, error) {
	a := &app{cfg: cfg}
	logger := log.StandardLogger()

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
	}

	var backend auth.Backend
	switch cfg.Token.Backend {
	case "redis":
		backend = auth.NewRedisBackend(a.redis, cfg.Token.RedisKey, cfg.Token.TTL)
	case "memory":
		backend = &auth.MemoryBackend{}
	default:
		backend = auth.FileBackend{Path: cfg.Token.File}
	}
	tokens, err := auth.NewTokenStore(ctx, backend, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.tokens = tokens
	a.client = api.New(cfg.API.BaseURL, tokens,
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithLogger(logger),
	)

	var transport realtime.Transport
	switch cfg.Realtime.Transport {
	case "redis":
		transport = realtime.NewRedisTransport(a.redis, cfg.Realtime.RedisPrefix)
	default:
		transport = realtime.NewSSETransport(cfg.Realtime.URL, tokens, nil)
	}
	opts = append([]session.Option{
		session.WithLogger(logger),
		session.WithRealtimeOptions(realtime.Options{
			ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay,
			StableAfter:       cfg.Realtime.StableAfter,
			Logger:            logger,
		}),
	}, opts...)
	a.session = session.New(tokens, a.client, transport, opts...)
	return a, nil
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// withApp builds the app for the duration of fn.
func withApp(ctx context.Context, cfg *config.Config, fn func(*app) error, opts ...session.Option) error {
	a, err := newApp(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
