package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ExplainResult carries a resolved plan rendered for inspection.
type ExplainResult struct {
	Fingerprint string   `json:"fingerprint"`
	Providers   []string `json:"providers"`
	Plan        string   `json:"plan"`
}

func (r ExplainResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(&sb, "providers:   %s\n", strings.Join(r.Providers, ", "))
	sb.WriteString(r.Plan)
	return strings.TrimRight(sb.String(), "\n")
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	reqOpts := &RequestOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Resolve a request and show its join plan",
		Long: `Resolve a request against the catalog's unit-type graph and print the
join plan it would execute, without touching any data source's rows.

Example:
  tally explain -c catalog.cue -u transaction -m value \
    -s person:seller/geography/name -w ds=2018-01-01`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, reqOpts, cmd)
		},
	}
	addRequestFlags(cmd, reqOpts)
	return cmd
}

func runExplain(opts *RootOptions, reqOpts *RequestOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	req, err := reqOpts.request()
	if err != nil {
		return WrapExitError(ExitCommandError, "parsing request", err)
	}
	eng, closer, err := loadEngine(opts)
	if err != nil {
		return err
	}
	defer closer()

	plan, err := eng.Resolve(req)
	if err != nil {
		if ferr := formatter.Error(errorCode(err), err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitFailure, Message: "resolution failed"}
	}
	return formatter.Success(ExplainResult{
		Fingerprint: plan.Fingerprint(),
		Providers:   plan.ProviderNames(),
		Plan:        plan.Explain(),
	})
}
