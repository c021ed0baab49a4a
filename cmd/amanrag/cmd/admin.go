package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/configs"
	"github.com/Aman-CERP/amanrag/internal/indexops"
)

// newAdminCmd groups the index administration commands. These run the
// same operations the admin tools expose, for operators without an MCP
// client at hand.
func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer the search index",
	}
	cmd.AddCommand(newEnsureIndexCmd())
	cmd.AddCommand(newValidateSchemaCmd())
	cmd.AddCommand(newRebuildIndexCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newValidateEmbeddingsCmd())
	cmd.AddCommand(newBackupSchemaCmd())
	cmd.AddCommand(newClearRepositoryCmd())
	return cmd
}

// withApp loads config, builds the pipeline, and runs fn with a
// signal-scoped context.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *app) (any, error)) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := fn(cmd.Context(), app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newEnsureIndexCmd() *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "ensure-index",
		Short: "Create the index from the canonical schema if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				schema, err := configs.IndexSchema()
				if err != nil {
					return nil, err
				}
				return app.ops.EnsureIndex(ctx, schema, update)
			})
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "Update the live index in place when it differs from the schema")
	return cmd
}

func newValidateSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-schema",
		Short: "Compare the live index against the canonical schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				schema, err := configs.IndexSchema()
				if err != nil {
					return nil, err
				}
				return app.ops.ValidateIndexSchema(ctx, app.cfg.Search.IndexName, schema)
			})
		},
	}
}

func newRebuildIndexCmd() *cobra.Command {
	var (
		confirm   bool
		backup    bool
		backupDir string
	)
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Drop and recreate the index from the canonical schema",
		Long: `Drop and recreate the index. All documents are lost unless --backup
exports them first; re-run 'amanrag index' afterwards to repopulate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				cmd.PrintErrln("rebuild-index is destructive; repeat with --confirm to proceed")
				return nil
			}
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				schema, err := configs.IndexSchema()
				if err != nil {
					return nil, err
				}
				return app.ops.RecreateIndex(ctx, schema, backup, backupDir)
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Acknowledge that all documents will be dropped")
	cmd.Flags().BoolVar(&backup, "backup", false, "Export documents to JSONL before dropping")
	cmd.Flags().StringVar(&backupDir, "backup-dir", ".amanrag/backups", "Directory for schema and document exports")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var (
		batchSize int
		maxDocs   int
		cursor    string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "backfill-embeddings",
		Short: "Attach vectors to documents that lack them",
		Long: `Page through documents without a content vector, embed their content,
and merge the vectors back. Resumable: the result carries a cursor to
pass on the next invocation after an interruption.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				return app.ops.BackfillEmbeddings(ctx, indexops.BackfillOptions{
					Index:     app.cfg.Search.IndexName,
					BatchSize: batchSize,
					MaxDocs:   maxDocs,
					Cursor:    cursor,
					DryRun:    dryRun,
				})
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Documents per embedding batch (default from config)")
	cmd.Flags().IntVar(&maxDocs, "max-docs", 0, "Stop after this many documents (0 = all)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from a cursor returned by a previous run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count candidates without writing")
	return cmd
}

func newValidateEmbeddingsCmd() *cobra.Command {
	var sampleSize int
	cmd := &cobra.Command{
		Use:   "validate-embeddings",
		Short: "Sample documents and verify vector presence and dimension",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				return app.ops.ValidateEmbeddings(ctx, app.cfg.Search.IndexName,
					sampleSize, app.embedder.Dimensions())
			})
		},
	}
	cmd.Flags().IntVar(&sampleSize, "sample-size", 100, "Number of documents to sample")
	return cmd
}

func newBackupSchemaCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup-schema",
		Short: "Write the live index schema to a timestamped file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				return app.ops.BackupIndexSchema(ctx, app.cfg.Search.IndexName, dir)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".amanrag/backups", "Directory for schema backups")
	return cmd
}

func newClearRepositoryCmd() *cobra.Command {
	var (
		repository string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "clear-repository",
		Short: "Delete every indexed document of one repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if repository == "" {
				return cmd.Help()
			}
			return withApp(cmd, func(ctx context.Context, app *app) (any, error) {
				return app.ops.ClearRepositoryDocuments(ctx, app.cfg.Search.IndexName, repository, dryRun)
			})
		},
	}
	cmd.Flags().StringVar(&repository, "repository", "", "Repository whose documents are removed (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count matching documents without deleting")
	return cmd
}
