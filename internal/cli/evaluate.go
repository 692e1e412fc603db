package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/table"
)

// EvaluateResult carries one evaluation's output rows.
type EvaluateResult struct {
	EvalID string           `json:"eval_id"`
	Rows   []map[string]any `json:"rows"`

	text string
}

func (r EvaluateResult) String() string {
	return strings.TrimRight(r.text, "\n")
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	reqOpts := &RequestOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a request against the catalog's providers",
		Long: `Evaluate measures over the catalog's providers, joining through the
unit-type graph, and print the aggregated rows.

Example:
  tally evaluate -c catalog.cue -u transaction -m value \
    -s person:seller/geography/name -w ds=2018-01-01`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(rootOpts, reqOpts, cmd)
		},
	}
	addRequestFlags(cmd, reqOpts)
	return cmd
}

func runEvaluate(opts *RootOptions, reqOpts *RequestOptions, cmd *cobra.Command) error {
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := eng.Evaluate(ctx, req)
	if err != nil {
		if ferr := formatter.Error(errorCode(err), err.Error(), nil); ferr != nil {
			return ferr
		}
		return &ExitError{Code: ExitFailure, Message: "evaluation failed"}
	}
	formatter.VerboseLog("evaluation %s: plan %s", res.EvalID, res.Plan.Fingerprint())
	return formatter.Success(EvaluateResult{
		EvalID: res.EvalID,
		Rows:   tableRows(res.Table),
		text:   renderTable(res.Table),
	})
}

func renderTable(t *table.Table) string {
	if t.NumRows() == 0 {
		return "(no rows)"
	}
	return t.String()
}
