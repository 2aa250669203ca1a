package main

import (
	"context"
	"os"

	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("chat-relay exited with error")
		os.Exit(1)
	}
}
