package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// ChunkEncoder re-encodes a frame range of a video into its own file.
type ChunkEncoder struct {
	threads int
	logger  *zap.Logger
}

func NewChunkEncoder(threads int, logger *zap.Logger) *ChunkEncoder {
	return &ChunkEncoder{threads: threads, logger: logger}
}

// EncodeChunk keeps frames startFrame..endFrame (inclusive, zero-based),
// resets timestamps to start at zero and drops audio. The file is encoded
// under a temporary name in the destination directory and renamed on success.
func (c *ChunkEncoder) EncodeChunk(ctx context.Context, videoPath string, startFrame, endFrame int, outputPath string) error {
	if endFrame < startFrame {
		return fmt.Errorf("invalid frame range [%d, %d]", startFrame, endFrame)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}

	// keep the extension so ffmpeg picks the same muxer
	tmp := filepath.Join(filepath.Dir(outputPath), ".partial-"+filepath.Base(outputPath))
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, "ffmpeg", chunkArgs(videoPath, startFrame, endFrame, c.threads, tmp)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("publish chunk: %w", err)
	}

	c.logger.Debug("chunk encoded",
		zap.String("output", outputPath),
		zap.Int("start_frame", startFrame),
		zap.Int("end_frame", endFrame),
	)
	return nil
}

func chunkArgs(videoPath string, startFrame, endFrame, threads int, out string) []string {
	filter := fmt.Sprintf("select='between(n\\,%d\\,%d)',setpts=PTS-STARTPTS", startFrame, endFrame)
	args := []string{"-nostdin", "-loglevel", "error", "-i", videoPath, "-vf", filter, "-an"}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	return append(args, "-y", out)
}
