package port

import (
	"context"
	"io"
)

// ArtifactStore is the single filesystem boundary for pipeline outputs.
// Write publishes atomically; Exists reports a non-empty file or a directory
// with at least one entry.
type ArtifactStore interface {
	Exists(name string) (bool, error)
	Write(ctx context.Context, name string, r io.Reader) error
	Path(name string) string
}
