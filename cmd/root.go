package main

import (
	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

const serviceName = "chat-relay"

func newRootCmd() *cobra.Command {
	var (
		configPath string
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Real-time chat message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log.Init(log.Config{
				Level:       loaded.Log.Level,
				Pretty:      loaded.Log.Pretty,
				ServiceName: serviceName,
			})
			cfg = loaded

			return config.WatchLogLevel(configPath, func(level string) {
				log.SetLevel(level)
				l := log.L()
				l.Info().Str("level", level).Msg("log level reloaded")
			})
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config", "directory holding config.yaml")

	loadedConfig := func() *config.Config { return cfg }
	root.AddCommand(newServeCmd(loadedConfig), newPersistCmd(loadedConfig), newMemberCmd(loadedConfig))
	return root
}
