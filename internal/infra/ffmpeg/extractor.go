package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/port"
)

// FramePrefix is the file name prefix of decoded RGB frames.
const FramePrefix = "img_"

type Extractor struct {
	threads int
	format  string
	logger  *zap.Logger
}

func NewExtractor(threads int, format string, logger *zap.Logger) *Extractor {
	return &Extractor{threads: threads, format: format, logger: logger}
}

// ExtractFrames decodes every frame of videoPath into outputDir as
// img_00001.<format>, img_00002.<format>, ... Frames are written to a sibling
// staging directory first and the directory is renamed into place once ffmpeg
// succeeds.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, outputDir string) (*port.FrameExtractionResult, error) {
	duration, err := e.getVideoDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not get video duration", zap.String("video", videoPath), zap.Error(err))
	}

	staging := outputDir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	pattern := filepath.Join(staging, FramePrefix+"%05d."+e.format)
	cmd := exec.CommandContext(ctx, "ffmpeg", extractArgs(videoPath, pattern, e.threads)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	frames, err := filepath.Glob(filepath.Join(staging, FramePrefix+"*."+e.format))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from video")
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return nil, fmt.Errorf("clear frame dir: %w", err)
	}
	if err := os.Rename(staging, outputDir); err != nil {
		return nil, fmt.Errorf("publish frame dir: %w", err)
	}

	e.logger.Info("frames extracted",
		zap.String("frame_dir", outputDir),
		zap.Int("count", len(frames)),
		zap.Float64("video_duration", duration),
	)

	return &port.FrameExtractionResult{
		FrameDir:      outputDir,
		FrameCount:    len(frames),
		VideoDuration: duration,
	}, nil
}

// extractArgs keeps the container frame rate: no fps filter, one image per
// decoded frame.
func extractArgs(videoPath, pattern string, threads int) []string {
	args := []string{"-nostdin", "-loglevel", "error", "-i", videoPath}
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	return append(args, "-vsync", "0", "-q:v", "2", "-start_number", "1", "-y", pattern)
}

func (e *Extractor) getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
