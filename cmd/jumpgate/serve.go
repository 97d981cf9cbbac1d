package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/jumpgate/internal/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/httpapi"
)

type serveOptions struct {
	listen string
}

func newServeCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the remote call API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (overrides server.listen)")

	return cmd
}

func runServe(cmd *cobra.Command, rootFlags *rootFlags, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, rootFlags, cmd.ErrOrStderr())
	if err != nil {
		return newCommandError("serve", "loading configuration", err, "Run 'jumpgate validate' to check the configuration file.")
	}
	defer a.Close()

	listen := a.cfg.Server.Listen
	if opts.listen != "" {
		listen = opts.listen
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           newHandler(a),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "listening", "address", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return newCommandError("serve", "listening on "+listen, err, "Check that the address is free or pass --listen.")
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(a.cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return newCommandError("serve", "shutting down", err, "In-flight calls did not finish within server.shutdown_timeout.")
	}
	return nil
}

func newHandler(a *app) http.Handler {
	opts := httpapi.Options{
		Executor:     a.useCase,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
		Validator:    config.GetValidator(),
		Logger:       a.logger,
		Checks: map[string]httpapi.HealthCheck{
			"counter_store": a.store.Ping,
		},
	}
	if a.history != nil {
		opts.History = a.history
	}
	return httpapi.New(opts).Handler()
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
