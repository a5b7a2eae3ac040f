package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fathomlabs/stratus/internal/config"
	"github.com/fathomlabs/stratus/internal/observability"
	"github.com/fathomlabs/stratus/pkg/reader"
)

var treeCmd = &cobra.Command{
	Use:   "tree <url>",
	Short: "Read every object under a prefix URL",
	Long: `Read every object whose key starts with the URL's path, and either
list the relative paths or materialize the tree into a local directory.

Example:
  stratus tree https://myaccount.blob.core.windows.net/container/docs/
  stratus tree --dir ./out https://myaccount.blob.core.windows.net/container/docs/`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

var (
	treeDir         string
	treeConcurrency int
)

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().StringVarP(&treeDir, "dir", "d", "", "Write objects into this directory (default: list paths only)")
	treeCmd.Flags().IntVar(&treeConcurrency, "concurrency", reader.DefaultTreeConcurrency, "Maximum downloads in flight")
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	cfg, err := loadConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	r := reader.New(config.NewFactory(cfg), logger)
	defer func() { _ = r.Close() }()

	entries, err := r.ReadTree(ctx, args[0], reader.TreeOptions{Concurrency: treeConcurrency})
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Tree read failed", err)
	}

	if treeDir == "" {
		for _, entry := range entries {
			fmt.Fprintln(cmd.OutOrStdout(), entry.RelativePath)
			_ = entry.Body.Close()
		}
		return nil
	}

	for _, entry := range entries {
		if err := writeEntry(treeDir, entry); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write tree entry", err)
		}
	}

	logger.Info("Tree read completed",
		zap.String("url", args[0]),
		zap.Int("objects", len(entries)),
		zap.String("dir", treeDir))
	return nil
}

// writeEntry materializes one tree entry under dir. Relative paths are
// forward-slash separated; conversion to the platform separator happens
// only here, at the filesystem boundary.
func writeEntry(dir string, entry reader.TreeEntry) error {
	defer func() { _ = entry.Body.Close() }()

	target := filepath.Join(dir, filepath.FromSlash(entry.RelativePath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", entry.RelativePath, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(f, entry.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return f.Close()
}
