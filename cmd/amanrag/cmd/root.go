// Package cmd provides the CLI commands for AmanRAG.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the amanrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Code-search and RAG service for coding agents",
		Long: `AmanRAG serves hybrid code search (BM25 + vector + semantic) over an
external search index, exposed as MCP tools over stdio and HTTP/SSE.

Point it at a search service endpoint, index a repository with
'amanrag index', and connect an agent with 'amanrag serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}()
	return NewRootCmd().Execute()
}

// loadConfig builds the effective configuration and initializes logging.
// forceJSONLogs keeps stdout clean for protocol transports.
func loadConfig(forceJSONLogs bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	_, cleanup, err := logging.Setup(logging.Config{
		Level:     level,
		FilePath:  cfg.Logging.File,
		ForceJSON: forceJSONLogs,
	})
	if err != nil {
		return nil, err
	}
	loggingCleanup = cleanup
	return cfg, nil
}
