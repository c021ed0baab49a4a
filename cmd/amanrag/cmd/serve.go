package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/server"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool surface over stdio or HTTP",
		Long: `Serve MCP tools on the selected transport.

stdio owns stdout for the protocol; all logs go to stderr as JSON.
http exposes /auth and /mcp endpoints with bearer authentication.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	return cmd
}

func runServe(ctx context.Context, transport string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}

	cfg, err := loadConfig(transport == "stdio")
	if err != nil {
		return err
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if transport == "stdio" {
		stdio, err := server.NewStdio(app.registry)
		if err != nil {
			return err
		}
		return stdio.Run(ctx)
	}

	var mgr *auth.Manager
	if !cfg.Server.DevMode {
		mgr, err = auth.NewManager(cfg.Auth)
		if err != nil {
			return err
		}
	}
	srv, err := server.New(cfg, app.registry, mgr)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
