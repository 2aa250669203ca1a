package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-chat-relay/internal/config"
	"github.com/weiawesome/wes-io-chat-relay/internal/consumer"
	"github.com/weiawesome/wes-io-chat-relay/internal/handler"
	"github.com/weiawesome/wes-io-chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-chat-relay/internal/service"
	"github.com/weiawesome/wes-io-chat-relay/pkg/log"
	"github.com/weiawesome/wes-io-chat-relay/pkg/response"
)

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve WebSocket sessions and the read-tracking API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	l := log.L()
	ctx = log.WithLogger(ctx, l)

	gatewayMode := cfg.Dispatch.Mode == config.DispatchGateway
	d, err := openDeps(ctx, cfg, gatewayMode)
	if err != nil {
		return err
	}
	defer d.close(ctx)

	registry := hub.NewRegistry(cfg.WebSocket.RegistryShards)
	broadcaster := hub.NewBroadcaster(registry)

	var dispatcher service.Dispatcher
	if gatewayMode {
		dispatcher = service.NewGatewayDispatcher(d.chat, d.gateway, cfg.Gateway.EnqueueTimeout)
	} else {
		dispatcher = service.NewDirectDispatcher(d.chat, broadcaster)
	}

	readService := service.NewReadService(d.readStore(), d.members, cfg.Chat.RequireMembership)
	sessionIDs, err := idgen.NewSessionIDs(cfg.WebSocket.SessionID)
	if err != nil {
		return err
	}
	wsHandler := handler.NewWSHandler(registry, dispatcher, sessionIDs, cfg.WebSocket, cfg.Chat.MaxMessageLength)
	httpHandler := handler.NewHTTPHandler(readService, registry)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(l))
	httpHandler.RegisterRoutes(router)
	wsHandler.RegisterRoutes(router)
	router.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Str("dispatch", cfg.Dispatch.Mode).Msg("chat relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down chat relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		wsHandler.Shutdown()
		return err
	})

	if gatewayMode {
		g.Go(func() error {
			return consumer.NewBroadcastConsumer(d.gateway, broadcaster).Run(gctx)
		})
		if cfg.Gateway.PersistInline {
			g.Go(func() error {
				return consumer.NewPersistConsumer(d.gateway, d.chat, cfg.Gateway.PersistGroup).Run(gctx)
			})
		}
	}

	err = g.Wait()
	l.Info().Int("open_sessions", registry.Len()).Msg("chat relay stopped")
	return err
}
