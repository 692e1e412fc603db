package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/catalog"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
)

// RequestOptions holds the flags that describe one evaluation request.
type RequestOptions struct {
	Unit      string
	Measures  []string
	SegmentBy []string
	Where     []string
}

// addRequestFlags registers the request flags on a command. The unit flag
// is required; everything else is optional.
func addRequestFlags(cmd *cobra.Command, opts *RequestOptions) {
	cmd.Flags().StringVarP(&opts.Unit, "unit", "u", "", "target unit type (required)")
	cmd.Flags().StringSliceVarP(&opts.Measures, "measure", "m", nil, "measure path, repeatable")
	cmd.Flags().StringSliceVarP(&opts.SegmentBy, "segment-by", "s", nil, "segment path, repeatable")
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "constraint as path=value, repeatable")
	_ = cmd.MarkFlagRequired("unit")
}

// request converts the flags into an engine request. Each --where entry is
// path=value; a comma-separated value means set membership, and values
// starting with a comparison operator ("> 21") constrain ordering.
func (o *RequestOptions) request() (engine.Request, error) {
	where, err := parseWhere(o.Where)
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		Unit:      schema.UnitType(o.Unit),
		Measures:  o.Measures,
		SegmentBy: o.SegmentBy,
		Where:     where,
	}, nil
}

func parseWhere(entries []string) (any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	spec := make(map[string]any, len(entries))
	for _, entry := range entries {
		path, value, ok := strings.Cut(entry, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --where %q: expected path=value", entry)
		}
		if parts := strings.Split(value, ","); len(parts) > 1 {
			members := make([]any, len(parts))
			for i, p := range parts {
				members[i] = strings.TrimSpace(p)
			}
			spec[path] = members
			continue
		}
		spec[path] = value
	}
	return spec, nil
}

// loadEngine loads the catalog and binds its providers to a running
// engine. The returned closer releases every bound connection.
func loadEngine(opts *RootOptions) (*engine.Engine, func() error, error) {
	cat, err := catalog.Load(opts.Catalog)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading catalog", err)
	}
	eng, closer, err := cat.Engine(filepath.Dir(opts.Catalog))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "binding catalog providers", err)
	}
	return eng, closer, nil
}
