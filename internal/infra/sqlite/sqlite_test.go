package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/port"
)

func openTestDB(t *testing.T) *ProbeCache {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "bmnprep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProbeCache(db)
}

func TestProbeCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := openTestDB(t)
	key := port.ProbeKey{Path: "/videos/a.MP4", Size: 1024, ModTime: time.Unix(1700000000, 123)}

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := port.ProbeResult{FrameCount: 9000, FPS: 29.97, Duration: 300.3}
	require.NoError(t, cache.Put(ctx, key, want))

	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, *got)
}

func TestProbeCacheInvalidatedByChange(t *testing.T) {
	ctx := context.Background()
	cache := openTestDB(t)
	key := port.ProbeKey{Path: "/videos/a.MP4", Size: 1024, ModTime: time.Unix(1700000000, 0)}
	require.NoError(t, cache.Put(ctx, key, port.ProbeResult{FrameCount: 10, FPS: 30, Duration: 1}))

	resized := key
	resized.Size = 2048
	_, ok, err := cache.Get(ctx, resized)
	require.NoError(t, err)
	assert.False(t, ok)

	touched := key
	touched.ModTime = key.ModTime.Add(time.Second)
	_, ok, err = cache.Get(ctx, touched)
	require.NoError(t, err)
	assert.False(t, ok)
}

type countingProber struct {
	calls int
	res   *port.ProbeResult
	err   error
}

func (p *countingProber) Probe(context.Context, string) (*port.ProbeResult, error) {
	p.calls++
	return p.res, p.err
}

func TestCachedProberProbesOnce(t *testing.T) {
	ctx := context.Background()
	video := filepath.Join(t.TempDir(), "a.MP4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o644))

	inner := &countingProber{res: &port.ProbeResult{FrameCount: 300, FPS: 30, Duration: 10}}
	p := NewCachedProber(inner, openTestDB(t), zap.NewNop())

	for i := 0; i < 3; i++ {
		res, err := p.Probe(ctx, video)
		require.NoError(t, err)
		assert.Equal(t, 300, res.FrameCount)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestCachedProberErrors(t *testing.T) {
	ctx := context.Background()
	p := NewCachedProber(&countingProber{}, openTestDB(t), zap.NewNop())
	_, err := p.Probe(ctx, filepath.Join(t.TempDir(), "absent.MP4"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	video := filepath.Join(t.TempDir(), "b.MP4")
	require.NoError(t, os.WriteFile(video, []byte("data"), 0o644))
	inner := &countingProber{err: errors.New("ffprobe failed")}
	p = NewCachedProber(inner, openTestDB(t), zap.NewNop())
	_, err = p.Probe(ctx, video)
	assert.EqualError(t, err, "ffprobe failed")
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "bmnprep.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := NewRunRepository(db)

	run := &Run{ID: uuid.New(), Status: RunRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, run))

	finished := run.StartedAt.Add(time.Minute)
	run.Status = RunCompleted
	run.FinishedAt = &finished
	run.Videos = 12
	run.FailedItems = 2
	require.NoError(t, repo.Update(ctx, run))

	got, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 12, got.Videos)
	assert.Equal(t, 2, got.FailedItems)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	assert.True(t, got.StartedAt.Equal(run.StartedAt))

	_, err = repo.FindByID(ctx, uuid.New())
	assert.Error(t, err)
}
