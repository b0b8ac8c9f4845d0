package port

import "context"

// ChunkEncoder cuts the inclusive frame range [startFrame, endFrame] of a
// video into a new file.
type ChunkEncoder interface {
	EncodeChunk(ctx context.Context, videoPath string, startFrame, endFrame int, outputPath string) error
}
