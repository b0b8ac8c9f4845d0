package rawframes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFrames(t *testing.T, dir, prefix string, n int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 1; i <= n; i++ {
		name := FrameName(prefix, i, ".jpg")
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
}

func TestCountFrames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "img_", 12)
	writeFrames(t, dir, "flow_x_", 11)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img_notes.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "img_dir.jpg"), 0o755))

	n, err := NewCounter("jpg").CountFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestCountFramesMissingDir(t *testing.T) {
	_, err := NewCounter("jpg").CountFrames(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSplitFramesRenumbers(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "vid")
	writeFrames(t, src, "img_", 10)
	writeFrames(t, src, "flow_x_", 9)

	dst := filepath.Join(root, "out", "vid_02")
	s := NewSplitter("jpg", zap.NewNop())
	copied, err := s.SplitFrames(context.Background(), src, dst, 5, 9)
	require.NoError(t, err)
	// img 6..10 and flow_x 6..9
	assert.Equal(t, 9, copied)

	data, err := os.ReadFile(filepath.Join(dst, "img_00001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "img_00006.jpg", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "img_00005.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "img_00010.jpg", string(data))

	_, err = os.Stat(filepath.Join(dst, "flow_x_00005.jpg"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(dst + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestSplitFramesIsRepeatable(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "vid")
	writeFrames(t, src, "img_", 4)
	dst := filepath.Join(root, "vid_01")
	s := NewSplitter("jpg", zap.NewNop())

	_, err := s.SplitFrames(context.Background(), src, dst, 0, 3)
	require.NoError(t, err)
	_, err = s.SplitFrames(context.Background(), src, dst, 0, 1)
	require.NoError(t, err)

	n, err := NewCounter("jpg").CountFrames(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSplitFramesMissingSource(t *testing.T) {
	s := NewSplitter("jpg", zap.NewNop())
	_, err := s.SplitFrames(context.Background(), filepath.Join(t.TempDir(), "absent"), filepath.Join(t.TempDir(), "x"), 0, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
