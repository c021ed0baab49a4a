package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/indexer"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var (
		repository string
		embedDocs  bool
		watch      bool
		files      []string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository into the search service",
		Long: `Walk a repository, chunk its source files, and upload the chunks.

With --files only the named files are re-indexed, replacing their
previous chunks. With --watch the command keeps running and re-indexes
files as they change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			if repository == "" {
				repository = filepath.Base(root)
			}

			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := indexer.Options{
				Repository: repository,
				Root:       root,
				Embed:      embedDocs,
			}

			if watch {
				if _, err := app.indexer.Run(ctx, opts); err != nil {
					return err
				}
				return app.indexer.Watch(ctx, opts)
			}

			var report *indexer.Report
			if len(files) > 0 {
				report, err = app.indexer.IndexChangedFiles(ctx, opts, files)
			} else {
				report, err = app.indexer.Run(ctx, opts)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "", "Repository name stored on every chunk (default: directory name)")
	cmd.Flags().BoolVar(&embedDocs, "embed", false, "Attach content vectors during upload")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-index files as they change")
	cmd.Flags().StringSliceVar(&files, "files", nil, "Re-index only these files (relative to the root)")
	return cmd
}
