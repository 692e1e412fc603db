package testutil

import (
	"io"
	"log/slog"
)

// Logger returns a logger that drops everything. Tests pass it wherever a
// component logs, keeping test output to the assertions.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
