package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/port"
)

// ProbeCache stores ffprobe results keyed by path; an entry is only valid for
// the exact size and modification time it was recorded with.
type ProbeCache struct {
	db *sql.DB
}

var _ port.ProbeCache = (*ProbeCache)(nil)

func NewProbeCache(db *sql.DB) *ProbeCache {
	return &ProbeCache{db: db}
}

func (c *ProbeCache) Get(ctx context.Context, key port.ProbeKey) (*port.ProbeResult, bool, error) {
	query := `
		SELECT size, mod_time, frame_count, fps, duration
		FROM probe_cache WHERE path=?`

	var (
		size, modTime int64
		res           port.ProbeResult
	)
	err := c.db.QueryRowContext(ctx, query, key.Path).Scan(&size, &modTime, &res.FrameCount, &res.FPS, &res.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find probe: %w", err)
	}
	if size != key.Size || modTime != key.ModTime.UnixNano() {
		return nil, false, nil
	}
	return &res, true, nil
}

func (c *ProbeCache) Put(ctx context.Context, key port.ProbeKey, res port.ProbeResult) error {
	query := `
		INSERT OR REPLACE INTO probe_cache (path, size, mod_time, frame_count, fps, duration)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query,
		key.Path, key.Size, key.ModTime.UnixNano(),
		res.FrameCount, res.FPS, res.Duration,
	)
	if err != nil {
		return fmt.Errorf("store probe: %w", err)
	}
	return nil
}

// CachedProber consults the cache before running the wrapped prober. Cache
// failures are logged and fall through to a fresh probe.
type CachedProber struct {
	next   port.FrameProber
	cache  port.ProbeCache
	logger *zap.Logger
}

func NewCachedProber(next port.FrameProber, cache port.ProbeCache, logger *zap.Logger) *CachedProber {
	return &CachedProber{next: next, cache: cache, logger: logger}
}

func (p *CachedProber) Probe(ctx context.Context, videoPath string) (*port.ProbeResult, error) {
	fi, err := os.Stat(videoPath)
	if err != nil {
		return nil, err
	}
	key := port.ProbeKey{Path: videoPath, Size: fi.Size(), ModTime: fi.ModTime()}

	if res, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("probe cache lookup failed", zap.String("video", videoPath), zap.Error(err))
	} else if ok {
		return res, nil
	}

	res, err := p.next.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(ctx, key, *res); err != nil {
		p.logger.Warn("probe cache store failed", zap.String("video", videoPath), zap.Error(err))
	}
	return res, nil
}
