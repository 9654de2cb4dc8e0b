/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/palaver-chat/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Moderation event stream tools",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print moderation events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		events, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if events == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer events.Close()

		logger.Info("tailing moderation events", "topic", cfg.MQ.AuditTopic)
		err = events.Subscribe(ctx, cfg.MQ.AuditTopic, func(ctx context.Context, msg mq.Message) error {
			_, err := fmt.Fprintln(os.Stdout, string(msg.Data))
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
