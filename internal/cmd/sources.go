package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fathomlabs/stratus/pkg/discovery"
	"github.com/fathomlabs/stratus/pkg/storage"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Validate the configuration and list discovery sources",
	Long: `Load and validate the configuration, then print every configured
discovery source with its derived provider name and schedule.

Example:
  stratus sources --config stratus.yaml
  stratus sources --config stratus.yaml --output yaml`,
	RunE: runSources,
}

var sourcesOutput string

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().StringVarP(&sourcesOutput, "output", "o", "table", "Output format (table|yaml)")
}

// sourceSummary is the yaml-facing view of one configured source.
type sourceSummary struct {
	Provider  string `yaml:"provider"`
	Container string `yaml:"container"`
	Prefix    string `yaml:"prefix,omitempty"`
	Every     string `yaml:"every"`
	Timeout   string `yaml:"timeout"`
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	if len(cfg.Sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sources configured.")
		return nil
	}

	switch sourcesOutput {
	case "yaml":
		summaries := make([]sourceSummary, 0, len(cfg.Sources))
		for _, src := range cfg.Sources {
			summaries = append(summaries, sourceSummary{
				Provider:  discovery.ProviderName(storage.Backend(src.Kind), src.ID),
				Container: src.Container,
				Prefix:    src.Prefix,
				Every:     src.Schedule.Every.String(),
				Timeout:   src.Schedule.Timeout.String(),
			})
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(summaries)
	case "table", "":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tCONTAINER\tPREFIX\tEVERY\tTIMEOUT")
		for _, src := range cfg.Sources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				discovery.ProviderName(storage.Backend(src.Kind), src.ID),
				src.Container, src.Prefix,
				src.Schedule.Every, src.Schedule.Timeout)
		}
		return w.Flush()
	default:
		return exitError(foundry.ExitInvalidArgument, "Unsupported output format",
			fmt.Errorf("output %q is not supported (table or yaml)", sourcesOutput))
	}
}
