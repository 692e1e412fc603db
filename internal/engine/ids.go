package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces evaluation identifiers. Every Evaluate call is
// stamped with one, and the ID travels through logs and runtime errors so
// a failure can be tied back to its request.
type IDGenerator interface {
	NewEvalID() string
}

// UUIDGenerator issues UUIDv7 identifiers. The timestamp prefix keeps
// logged evaluations roughly sortable by start time.
type UUIDGenerator struct{}

// NewEvalID returns a fresh UUIDv7.
func (UUIDGenerator) NewEvalID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator issues "prefix-N" identifiers for deterministic
// tests.
type SequentialGenerator struct {
	Prefix string
	n      atomic.Uint64
}

// NewEvalID returns the next sequential identifier.
func (g *SequentialGenerator) NewEvalID() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1))
}
