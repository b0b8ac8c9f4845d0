package port

import "context"

type FrameExtractionResult struct {
	FrameDir      string
	FrameCount    int
	VideoDuration float64
}

// FrameExtractor decodes a video into a directory of img_%05d.jpg frames.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, outputDir string) (*FrameExtractionResult, error)
}

// FrameCounter measures how many frames an extracted frame directory holds.
type FrameCounter interface {
	CountFrames(dir string) (int, error)
}

// FrameSplitter copies the frames of the inclusive range [startFrame,
// endFrame] of srcDir into dstDir, renumbered from 1. It returns how many
// files were copied.
type FrameSplitter interface {
	SplitFrames(ctx context.Context, srcDir, dstDir string, startFrame, endFrame int) (int, error)
}
