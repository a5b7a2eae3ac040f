package cmd

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fathomlabs/stratus/internal/config"
	"github.com/fathomlabs/stratus/internal/observability"
	"github.com/fathomlabs/stratus/pkg/objecturl"
	"github.com/fathomlabs/stratus/pkg/reader"
	"github.com/fathomlabs/stratus/pkg/storage"
)

var readCmd = &cobra.Command{
	Use:   "read <url>",
	Short: "Read a single object by URL",
	Long: `Read a single object by its fully qualified URL and write its
content to stdout or a file.

With --etag or --modified-since the fetch is conditional: an unchanged
object yields a "not modified" result instead of content.

Example:
  stratus read https://myaccount.blob.core.windows.net/container/catalog-info.yaml
  stratus read --etag 0x8D9... https://myaccount.blob.core.windows.net/container/catalog-info.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readETag          string
	readModifiedSince string
	readOutput        string
)

// exitNotModified is the read command's exit code for a conditional
// miss. The foundry catalog has no entry for an unchanged object, so
// the command claims its own code, distinct from success and from the
// failure codes below.
const exitNotModified = 44

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().StringVar(&readETag, "etag", "", "Skip the fetch if the object still has this ETag")
	readCmd.Flags().StringVar(&readModifiedSince, "modified-since", "", "Skip the fetch unless modified after this RFC3339 time")
	readCmd.Flags().StringVarP(&readOutput, "output", "o", "", "Write content to this file instead of stdout")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	cfg, err := loadConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	opts := reader.ReadOptions{ETag: readETag}
	if readModifiedSince != "" {
		ts, err := time.Parse(time.RFC3339, readModifiedSince)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --modified-since timestamp", err)
		}
		opts.LastModifiedAfter = ts
	}

	r := reader.New(config.NewFactory(cfg), logger)
	defer func() { _ = r.Close() }()

	result, err := r.ReadURL(ctx, args[0], opts)
	if err != nil {
		if storage.IsNotModified(err) {
			// Conditional miss is an outcome, not a failure.
			logger.Info("Object not modified", zap.String("url", args[0]))
		}
		return readFailure(err)
	}
	defer func() { _ = result.Body.Close() }()

	out := cmd.OutOrStdout()
	if readOutput != "" {
		f, err := os.Create(readOutput)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to create output file", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	n, err := io.Copy(out, result.Body)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write content", err)
	}

	logger.Debug("Read completed",
		zap.String("url", args[0]),
		zap.String("etag", result.ETag),
		zap.Int64("bytes", n))
	return nil
}

// readFailure maps a ReadURL error to the command's exit outcome. A
// conditional miss gets its own exit code so callers can branch on the
// exit status; the content stream stays untouched on every error path.
func readFailure(err error) error {
	switch {
	case storage.IsNotModified(err):
		return exitError(exitNotModified, "Object not modified", err)
	case errors.Is(err, objecturl.ErrInvalidURL):
		return exitError(foundry.ExitInvalidArgument, "Invalid object URL", err)
	case storage.IsNotFound(err):
		return exitError(foundry.ExitFileNotFound, "Object not found", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Read failed", err)
	}
}
