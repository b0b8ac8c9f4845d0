package port

import (
	"context"
	"time"
)

// ProbeKey identifies a probed file revision; a changed size or modification
// time invalidates the cached result.
type ProbeKey struct {
	Path    string
	Size    int64
	ModTime time.Time
}

type ProbeCache interface {
	Get(ctx context.Context, key ProbeKey) (*ProbeResult, bool, error)
	Put(ctx context.Context, key ProbeKey, result ProbeResult) error
}
