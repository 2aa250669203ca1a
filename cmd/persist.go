package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/consumer"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

func newPersistCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "persist",
		Short: "Store messages from the gateway log in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l := log.L()
			ctx = log.WithLogger(ctx, l)

			c := cfg()
			d, err := openDeps(ctx, c, true)
			if err != nil {
				return err
			}
			defer d.close(ctx)

			err = consumer.NewPersistConsumer(d.gateway, d.chat, c.Gateway.PersistGroup).Run(ctx)
			l.Info().Msg("persist consumer stopped")
			return err
		},
	}
}
