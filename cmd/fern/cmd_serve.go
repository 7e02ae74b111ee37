package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(appOptions{schema: true, notifications: true})
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: a.cfg.AppName,
		Endpoint:    a.cfg.OtelExporterEndpoint,
		Protocol:    a.cfg.OtelExporterProtocol,
		Insecure:    a.cfg.OtelExporterInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			a.logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.stop(context.Background())

	var opts server.Options
	if a.cfg.AuthEnabled {
		verifier, err := middleware.NewVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
		if err != nil {
			return err
		}
		opts.Verifier = verifier
	}
	opts.Health = a.healthChecker()

	srv := server.New(a.cfg, server.NewServices(a.store, a.logger, a.approvalOptions()...), a.logger, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	opts.Health.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	opts.Health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
