package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/catalog"
)

// ValidationResult summarizes a validated catalog.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Providers []ProviderSummary `json:"providers,omitempty"`
}

// ProviderSummary lists one provider's declared surface.
type ProviderSummary struct {
	Name     string   `json:"name"`
	Backend  string   `json:"backend"`
	Source   string   `json:"source"`
	Features []string `json:"features,omitempty"`
}

// ValidationProblem is one catalog defect with its location.
type ValidationProblem struct {
	File    string `json:"file,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (r ValidationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "catalog valid: %d provider(s)\n", len(r.Providers))
	for _, p := range r.Providers {
		fmt.Fprintf(&sb, "  %s (%s: %s) features: %s\n",
			p.Name, p.Backend, p.Source, strings.Join(p.Features, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog without binding backends",
		Long: `Validate the catalog: CUE syntax, required fields, backend names, and
each provider's feature declarations. No data source is opened.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("validating %s", opts.Catalog)

	cat, err := catalog.Load(opts.Catalog)
	if err != nil {
		var le *catalog.LoadError
		if errors.As(err, &le) {
			problem := ValidationProblem{File: le.File, Field: le.Field, Message: le.Message}
			if ferr := formatter.Error("INVALID_CATALOG", le.Message, problem); ferr != nil {
				return ferr
			}
			return &ExitError{Code: ExitFailure, Message: "catalog invalid"}
		}
		return WrapExitError(ExitCommandError, "loading catalog", err)
	}

	result := ValidationResult{Valid: true}
	for _, p := range cat.Providers {
		result.Providers = append(result.Providers, ProviderSummary{
			Name:     p.Name,
			Backend:  string(p.Backend),
			Source:   p.Source,
			Features: p.Decl.Fields(),
		})
	}
	return formatter.Success(result)
}
