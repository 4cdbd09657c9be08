package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskdesk/config"
	"taskdesk/realtime"
	"taskdesk/session"
)

var errChannelClosed = errors.New("realtime connection lost and reconnect attempts exhausted")

func watchCmd(cfg func() *config.Config) *cobra.Command {
	var (
		manager     bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the task list and follow realtime updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if metricsAddr == "" {
				metricsAddr = c.MetricsAddr
			}
			out := cmd.OutOrStdout()
			notify := session.NotifierFunc(func(msg string) {
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), msg)
			})
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr)
				defer stop()
			}
			return withApp(cmd.Context(), c, func(a *app) error {
				return watch(cmd.Context(), out, a.session, manager)
			}, session.WithNotifier(notify))
		},
	}
	cmd.Flags().BoolVar(&manager, "manager", false, "Follow the manager view (completions only)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose prometheus metrics on this address")
	return cmd
}

func watch(ctx context.Context, out io.Writer, s *session.Session, manager bool) error {
	var (
		ch  *realtime.Channel
		err error
	)
	if manager {
		if _, _, err = s.LoadManager(ctx); err == nil {
			ch, err = s.WatchManager(ctx)
		}
	} else {
		if _, err = s.Load(ctx); err == nil {
			ch, err = s.WatchEmployee(ctx)
		}
	}
	if err != nil {
		return err
	}
	u, _ := s.User()
	log.WithFields(log.Fields{"user_id": u.ID, "role": u.Role, "tasks": s.Tasks().Len()}).Info("watching")

	changed, cancel := s.Tasks().Watch()
	defer cancel()
	if err := printTasks(out, s.Tasks().Snapshot()); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			fmt.Fprintln(out)
			if err := printTasks(out, s.Tasks().Snapshot()); err != nil {
				return err
			}
		case <-ticker.C:
			if ch.State() == realtime.Disconnected {
				return errChannelClosed
			}
		}
	}
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
