package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskdesk/config"
	"taskdesk/internal/fakeapi"
)

func fakeServerCmd(cfg func() *config.Config) *cobra.Command {
	var (
		addr      string
		secret    string
		withRedis bool
	)
	cmd := &cobra.Command{
		Use:   "fake-server",
		Short: "Run an in-memory task backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			opts := []fakeapi.Option{fakeapi.WithLogger(log.StandardLogger())}
			if secret != "" {
				opts = append(opts, fakeapi.WithSecret(secret))
			}
			if withRedis {
				if c.RedisURL == "" {
					return fmt.Errorf("--redis needs REDIS_URL")
				}
				ropts, err := redis.ParseURL(c.RedisURL)
				if err != nil {
					return fmt.Errorf("parse REDIS_URL: %w", err)
				}
				rc := redis.NewClient(ropts)
				defer rc.Close()
				opts = append(opts, fakeapi.WithRedis(rc, c.Realtime.RedisPrefix))
			}
			srv := fakeapi.New(opts...)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				log.WithField("addr", addr).Info("fake backend listening")
				return srv.Start(addr)
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret")
	cmd.Flags().BoolVar(&withRedis, "redis", false, "Mirror realtime events to redis pub/sub (REDIS_URL)")
	return cmd
}
