/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agronect/apiserver/config"
	"github.com/agronect/apiserver/internal/events"
	"github.com/agronect/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect auth events on the message broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every auth event published to AUTH_EVENTS_CHANNEL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}

		publisher := events.NewPublisher(broker, cfg.MQ.Channel)
		defer publisher.Close()

		logger.Info("tailing auth events", slog.String("channel", cfg.MQ.Channel))
		err = publisher.Tail(ctx, func(ctx context.Context, event events.Event) error {
			logger.InfoContext(ctx, "auth event",
				slog.String("type", string(event.Type)),
				slog.String("user_id", event.UserID),
				slog.String("email", event.Email),
				slog.Time("at", event.At),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
