package catalog

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// LoadError represents a catalog loading error with source position.
type LoadError struct {
	File    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(file, field string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	out := &LoadError{File: file, Field: field, Message: firstErr.Error()}
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
