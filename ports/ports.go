// Package ports defines interfaces (contracts) between the compiler and its
// infrastructure. Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// SourceReader reads schema documents.
type SourceReader interface {
	ReadFile(path string) ([]byte, error)
}

// OutputWriter writes generated files, creating parent directories as needed.
type OutputWriter interface {
	WriteFile(path string, data []byte) error
	Exists(path string) (bool, error)
}

// -----------------------------------------------------------------------------
// Build Cache Port
// -----------------------------------------------------------------------------

// Run describes one compile invocation.
type Run struct {
	ID         string
	Inputs     []string
	StartedAt  time.Time
	FinishedAt time.Time
	Written    int
	Skipped    int
	Error      string
}

// BuildCache remembers the digest of every output a previous run wrote so
// that unchanged files are not rewritten.
type BuildCache interface {
	// Digest returns the last recorded digest of an output path.
	Digest(ctx context.Context, path string) (digest string, ok bool, err error)

	// Record stores the digest written for path by a run.
	Record(ctx context.Context, runID, path, digest string) error

	// BeginRun records the start of a run.
	BeginRun(ctx context.Context, run Run) error

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, run Run) error

	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]Run, error)
}
