package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fathomlabs/stratus/internal/config"
	"github.com/fathomlabs/stratus/internal/observability"
	"github.com/fathomlabs/stratus/internal/server"
	"github.com/fathomlabs/stratus/pkg/catalog"
	"github.com/fathomlabs/stratus/pkg/discovery"
	"github.com/fathomlabs/stratus/pkg/match"
	"github.com/fathomlabs/stratus/pkg/scheduler"
	"github.com/fathomlabs/stratus/pkg/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery agent",
	Long: `Run the discovery agent: one scheduled refresh task per configured
source, each publishing a full-replace location batch to the catalog.

Example:
  stratus run --config stratus.yaml`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	logger := observability.CLILogger

	cfg, err := loadConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if len(cfg.Sources) == 0 {
		return exitError(foundry.ExitInvalidArgument, "No sources configured", fmt.Errorf("at least one source is required"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := buildSink(cfg, logger)
	factory := config.NewFactory(cfg)

	sched := scheduler.New(logger)
	providers := make([]*discovery.Provider, 0, len(cfg.Sources))

	for _, src := range cfg.Sources {
		src := src
		clientFn := func(ctx context.Context) (storage.Client, error) {
			return factory.SourceClient(ctx, src)
		}

		prov, err := discovery.New(discovery.Config{
			ID:        src.ID,
			Kind:      storage.Backend(src.Kind),
			Prefix:    src.Prefix,
			PageSize:  src.PageSize,
			RateLimit: src.RateLimit,
		}, clientFn, logger)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid source", err)
		}

		if len(src.Filters.Includes) > 0 || len(src.Filters.Excludes) > 0 {
			m, err := match.New(match.Config{
				Includes: src.Filters.Includes,
				Excludes: src.Filters.Excludes,
			})
			if err != nil {
				return exitError(foundry.ExitInvalidArgument, "Invalid source filter", err)
			}
			prov = prov.WithMatcher(m)
		}

		if err := prov.Connect(sink); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to connect provider", err)
		}
		providers = append(providers, prov)

		if err := sched.Add(scheduler.Task{
			ID:      prov.TaskID(),
			Every:   src.Schedule.Every,
			Timeout: src.Schedule.Timeout,
			Fn:      prov.RunRefresh,
		}); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to schedule source", err)
		}
	}

	defer func() {
		for _, prov := range providers {
			_ = prov.Close()
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start scheduler", err)
	}
	defer sched.Stop()

	logger.Info("Discovery agent started",
		zap.Int("sources", len(cfg.Sources)),
		zap.String("catalog", cfg.Catalog.Endpoint))

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Host, cfg.Server.Port, sched, logger)
		if err := srv.Start(ctx); err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Status server failed", err)
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("Discovery agent stopping")
	return nil
}

// buildSink selects the catalog sink: HTTP when an endpoint is
// configured, otherwise a log-and-drop sink.
func buildSink(cfg *config.Config, logger *zap.Logger) catalog.Sink {
	if cfg.Catalog.Endpoint == "" {
		logger.Warn("No catalog endpoint configured, mutations will be logged and dropped")
		return catalog.NewLogSink(logger)
	}
	var opts []catalog.HTTPSinkOption
	if cfg.Catalog.Token != "" {
		opts = append(opts, catalog.WithToken(cfg.Catalog.Token))
	}
	return catalog.NewHTTPSink(cfg.Catalog.Endpoint, opts...)
}
