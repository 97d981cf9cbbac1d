package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/jumpgate/internal/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/mcpapi"
)

type mcpOptions struct {
	listen string
}

func newMCPCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &mcpOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose remote_call as an MCP tool over stdio or streamable HTTP",
		Long: "Serve the remote_call tool to MCP clients. Without --listen the protocol runs on stdin/stdout " +
			"and logs go to stderr; with --listen it is served over streamable HTTP at " + mcpapi.EndpointPath + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Serve streamable HTTP on this address instead of stdio")

	return cmd
}

func runMCP(cmd *cobra.Command, rootFlags *rootFlags, opts *mcpOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, rootFlags, cmd.ErrOrStderr())
	if err != nil {
		return newCommandError("mcp", "loading configuration", err, "Run 'jumpgate validate' to check the configuration file.")
	}
	defer a.Close()

	srv := newMCPServer(a)

	if opts.listen == "" {
		a.logger.Info(ctx, "serving mcp over stdio", "tool", mcpapi.ToolName)
		if err := srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return newCommandError("mcp", "serving stdio", err, "Check that the MCP client keeps stdin open.")
		}
		return nil
	}

	httpSrv := &http.Server{
		Addr:              opts.listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "serving mcp over http", "address", opts.listen, "path", mcpapi.EndpointPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return newCommandError("mcp", "listening on "+opts.listen, err, "Check that the address is free or pass another --listen.")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(a.cfg))
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return newCommandError("mcp", "shutting down", err, "In-flight calls did not finish within server.shutdown_timeout.")
	}
	return nil
}

func newMCPServer(a *app) *mcpapi.Server {
	return mcpapi.New(mcpapi.Options{
		Executor:  a.useCase,
		Validator: config.GetValidator(),
		Logger:    a.logger,
		Version:   version,
	})
}
