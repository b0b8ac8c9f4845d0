// Package rawframes reads and reorganizes directories of extracted frames
// laid out as img_00001.jpg, flow_x_00001.jpg, flow_y_00001.jpg, ...
package rawframes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Prefixes lists the per-frame modalities found in a frame directory, RGB
// first.
var Prefixes = []string{"img_", "flow_x_", "flow_y_"}

// Counter counts RGB frames in a directory.
type Counter struct {
	ext string
}

func NewCounter(format string) *Counter {
	return &Counter{ext: "." + strings.TrimPrefix(format, ".")}
}

// CountFrames returns the number of img_*.<format> regular files in dir. A
// missing directory yields an error wrapping os.ErrNotExist.
func (c *Counter) CountFrames(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, Prefixes[0]) && strings.HasSuffix(name, c.ext) {
			n++
		}
	}
	return n, nil
}

// FrameName formats the file name of the index-th (1-based) frame.
func FrameName(prefix string, index int, ext string) string {
	return fmt.Sprintf("%s%05d%s", prefix, index, ext)
}

type Splitter struct {
	ext    string
	logger *zap.Logger
}

func NewSplitter(format string, logger *zap.Logger) *Splitter {
	return &Splitter{ext: "." + strings.TrimPrefix(format, "."), logger: logger}
}

// SplitFrames copies frames startFrame+1..endFrame+1 of every modality that
// exists in srcDir into dstDir, renumbering them from 1. Absent source frames
// are skipped. The copy is staged next to dstDir and renamed into place.
func (s *Splitter) SplitFrames(ctx context.Context, srcDir, dstDir string, startFrame, endFrame int) (int, error) {
	if endFrame < startFrame {
		return 0, fmt.Errorf("invalid frame range [%d, %d]", startFrame, endFrame)
	}
	if _, err := os.Stat(srcDir); err != nil {
		return 0, err
	}

	staging := dstDir + ".partial"
	if err := os.RemoveAll(staging); err != nil {
		return 0, fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	copied := 0
	for j := startFrame + 1; j <= endFrame+1; j++ {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		local := j - startFrame
		for _, prefix := range Prefixes {
			src := filepath.Join(srcDir, FrameName(prefix, j, s.ext))
			ok, err := copyFile(src, filepath.Join(staging, FrameName(prefix, local, s.ext)))
			if err != nil {
				return copied, err
			}
			if ok {
				copied++
			}
		}
	}

	if err := os.RemoveAll(dstDir); err != nil {
		return copied, fmt.Errorf("clear frame dir: %w", err)
	}
	if err := os.Rename(staging, dstDir); err != nil {
		return copied, fmt.Errorf("publish frame dir: %w", err)
	}
	s.logger.Debug("frames split",
		zap.String("src", srcDir),
		zap.String("dst", dstDir),
		zap.Int("start_frame", startFrame),
		zap.Int("end_frame", endFrame),
		zap.Int("files", copied),
	)
	return copied, nil
}

// copyFile reports false without error when src does not exist.
func copyFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open frame: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("create frame: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, fmt.Errorf("copy frame: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close frame: %w", err)
	}
	return true, nil
}
