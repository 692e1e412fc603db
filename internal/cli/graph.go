package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/registry"
)

// GraphResult is the flattened unit-type graph of a bound catalog.
type GraphResult struct {
	Units []registry.UnitSummary `json:"units"`
}

func (r GraphResult) String() string {
	var sb strings.Builder
	for _, u := range r.Units {
		fmt.Fprintf(&sb, "unit %s\n", u.Unit)
		writeNames(&sb, "providers", u.Providers)
		writeNames(&sb, "foreign keys", u.ForeignKeys)
		writeNames(&sb, "reverse keys", u.ReverseKeys)
		writeNames(&sb, "dimensions", u.Dimensions)
		writeNames(&sb, "partitions", u.Partitions)
		writeNames(&sb, "measures", u.Measures)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeNames(sb *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(sb, "  %-12s %s\n", label, strings.Join(names, ", "))
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Show the unit-type graph declared by the catalog",
		Long: `Show every unit type the catalog's providers declare, with the
features reachable from each: foreign and reverse keys, dimensions,
partitions, and measures.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(rootOpts, cmd)
		},
	}
}

func runGraph(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	eng, closer, err := loadEngine(opts)
	if err != nil {
		return err
	}
	defer closer()

	snap := eng.Registry().Snapshot()
	formatter.VerboseLog("graph version %d", snap.Version())
	return formatter.Success(GraphResult{Units: snap.Summaries()})
}
