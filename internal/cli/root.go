package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags shared by every command.
type RootOptions struct {
	Catalog string
	Format  string // "text" | "json"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tally CLI.
//
// Every persistent flag can also be set through the environment with a
// TALLY_ prefix (TALLY_CATALOG, TALLY_FORMAT, TALLY_VERBOSE); explicit
// flags win over the environment.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - measure computation over a unit-type graph",
		Long: `Evaluate measures, segments, and constraints across the providers
declared in a catalog, joining through the unit-type graph as needed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindEnv(cmd, opts); err != nil {
				return err
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Catalog, "catalog", "c", "catalog.cue", "path to the catalog file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))

	return cmd
}

// bindEnv fills unset flags from TALLY_-prefixed environment variables.
func bindEnv(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	v.SetEnvPrefix("TALLY")
	v.AutomaticEnv()

	flags := cmd.Flags()
	for _, name := range []string{"catalog", "format", "verbose"} {
		if flags.Changed(name) || !v.IsSet(name) {
			continue
		}
		if err := flags.Set(name, v.GetString(name)); err != nil {
			return fmt.Errorf("environment variable TALLY_%s: %w", envKey(name), err)
		}
	}
	return nil
}

func envKey(flag string) string {
	out := make([]byte, len(flag))
	for i := 0; i < len(flag); i++ {
		c := flag[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func configureLogging(opts *RootOptions) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
