package port

import "context"

// ProbeResult is the container-level truth about a video file.
type ProbeResult struct {
	FrameCount int
	FPS        float64
	Duration   float64
}

type FrameProber interface {
	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)
}
