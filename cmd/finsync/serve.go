package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jask/finsync/internal/server"
	"github.com/jask/finsync/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	secret := webhookSecret(a.cfg)
	if secret == "" {
		a.logger.Warnf("[Server] webhook secret not configured; deliveries will be rejected")
	}
	handler := &webhook.Handler{
		Secret:       secret,
		Events:       a.router,
		Security:     a.security,
		Logs:         a.logs,
		Logger:       a.logger,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
	}
	srv, err := server.New(server.Config{
		Address:         a.cfg.Server.Address,
		Handler:         webhook.NewRouter(handler),
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx) })
	g.Go(func() error {
		select {
		case <-srv.Ready():
			a.logger.Infoj(log.JSON{"component": "server", "address": srv.Addr().String(), "route": "/webhooks/pluggy"})
		case <-ctx.Done():
		}
		return nil
	})
	return g.Wait()
}
