package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskdesk/config"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Command-line client for the task manager backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if base, _ := cmd.Flags().GetString("base-url"); base != "" {
				loaded.API.BaseURL = base
				loaded.Realtime.URL = base
			}
			cfg = loaded
			log.SetLevel(cfg.Level())
			log.SetOutput(os.Stderr)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
	}
	root.PersistentFlags().String("base-url", "", "Backend base URL (overrides API_BASE_URL)")

	get := func() *config.Config { return cfg }
	root.AddCommand(registerCmd(get))
	root.AddCommand(loginCmd(get))
	root.AddCommand(logoutCmd(get))
	root.AddCommand(whoamiCmd(get))
	root.AddCommand(employeesCmd(get))
	root.AddCommand(profileCmd(get))
	root.AddCommand(tasksCmd(get))
	root.AddCommand(watchCmd(get))
	root.AddCommand(fakeServerCmd(get))
	return root
}
