package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/schema"
)

// ResolutionError represents a request the resolver rejected.
//
// Rejections include:
//   - Unresolved path: no provider can supply a requested feature
//   - Unsatisfiable constraint: a scoped or unit-hinted condition cannot
//     be placed anywhere in the plan
//   - Missing partition constraint: a provider demands a constraint on a
//     partition and the request carries none
//   - Indivisible unit: the request would re-expose features of rows
//     already collapsed by aggregation
//   - Cyclic join: a provider is needed transitively by its own
//     resolution
//
// ResolutionError includes structured fields for diagnostics.
type ResolutionError struct {
	// Code identifies the rejection category.
	Code ResolutionErrorCode

	// Message is a human-readable description.
	Message string

	// Unit is the unit type under resolution when the rejection fired.
	Unit schema.UnitType

	// Path is the offending feature path, when one is implicated.
	Path string

	// Provider names the offending provider, when one is implicated.
	Provider string

	// Partition names the unconstrained partition for partition errors.
	Partition string
}

// ResolutionErrorCode categorizes resolution rejections.
type ResolutionErrorCode string

const (
	// ErrCodeUnresolvedPath indicates a requested measure or dimension
	// path no registered provider can supply.
	ErrCodeUnresolvedPath ResolutionErrorCode = "UNRESOLVED_PATH"

	// ErrCodeUnsatisfiableConstraint indicates a scoped or unit-hinted
	// constraint target that cannot be placed in any valid plan.
	ErrCodeUnsatisfiableConstraint ResolutionErrorCode = "UNSATISFIABLE_CONSTRAINT"

	// ErrCodeMissingPartitionConstraint indicates a provider whose
	// partition demands a constraint the request does not carry.
	ErrCodeMissingPartitionConstraint ResolutionErrorCode = "MISSING_PARTITION_CONSTRAINT"

	// ErrCodeIndivisibleUnit indicates a request that would aggregate
	// rows and then refine them across the unit boundary.
	ErrCodeIndivisibleUnit ResolutionErrorCode = "INDIVISIBLE_UNIT"

	// ErrCodeCyclicJoin indicates a provider revisited on the current
	// resolution stack.
	ErrCodeCyclicJoin ResolutionErrorCode = "CYCLIC_JOIN"
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	var ctx []string
	if e.Unit != "" {
		ctx = append(ctx, "unit="+string(e.Unit))
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Provider != "" {
		ctx = append(ctx, "provider="+e.Provider)
	}
	if e.Partition != "" {
		ctx = append(ctx, "partition="+e.Partition)
	}
	if len(ctx) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(ctx, ", "))
}

// IsUnresolvedPath returns true if the error is an unresolved path
// rejection. Uses errors.As to handle wrapped errors.
func IsUnresolvedPath(err error) bool {
	return hasCode(err, ErrCodeUnresolvedPath)
}

// IsUnsatisfiableConstraint returns true if the error is an
// unsatisfiable constraint rejection.
func IsUnsatisfiableConstraint(err error) bool {
	return hasCode(err, ErrCodeUnsatisfiableConstraint)
}

// IsMissingPartitionConstraint returns true if the error is a missing
// partition constraint rejection.
func IsMissingPartitionConstraint(err error) bool {
	return hasCode(err, ErrCodeMissingPartitionConstraint)
}

// IsIndivisibleUnit returns true if the error is an indivisible unit
// rejection.
func IsIndivisibleUnit(err error) bool {
	return hasCode(err, ErrCodeIndivisibleUnit)
}

// IsCyclicJoin returns true if the error is a cyclic join rejection.
func IsCyclicJoin(err error) bool {
	return hasCode(err, ErrCodeCyclicJoin)
}

func hasCode(err error, code ResolutionErrorCode) bool {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
