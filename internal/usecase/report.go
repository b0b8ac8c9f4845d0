package usecase

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/infra/metrics"
)

const (
	StageNormalize = "normalize"
	StagePartition = "partition"
	StageChunk     = "chunk"
	StageExtract   = "extract"
	StageResolve   = "resolve"
	StageResample  = "resample"
	StageEmit      = "emit"
)

type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	VideoID string `json:"video_id"`
	Reason  string `json:"reason"`
}

// Report accumulates what happened to each item during a run. It is safe for
// concurrent use by stage workers.
type Report struct {
	mu sync.Mutex

	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Settings    map[string]any `json:"settings"`
	Counts      map[string]int `json:"counts"`
	Failures    []Failure      `json:"failures"`
	EmptyVideos []string       `json:"empty_videos"`
	// NoSegments lists training and validation items left out of the
	// video and clip lists because no labeled segment reached them.
	NoSegments []string `json:"skipped_no_segments"`
}

func NewReport(runID string) *Report {
	return &Report{
		RunID:       runID,
		StartedAt:   time.Now().UTC(),
		Settings:    make(map[string]any),
		Counts:      make(map[string]int),
		Failures:    []Failure{},
		EmptyVideos: []string{},
		NoSegments:  []string{},
	}
}

// Record adds an item failure and logs it with its context.
func (r *Report) Record(err *entity.ItemError, log *zap.Logger) {
	fields := []zap.Field{
		zap.String("stage", err.Stage),
		zap.String("kind", string(err.Kind)),
		zap.String("video_id", err.VideoID),
		zap.Error(err.Err),
	}
	if err.Kind == entity.KindMissingResource {
		log.Warn("item skipped", fields...)
	} else {
		log.Error("item failed", fields...)
	}
	metrics.ItemFailuresTotal.WithLabelValues(err.Stage, string(err.Kind)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{
		Stage:   err.Stage,
		Kind:    string(err.Kind),
		VideoID: err.VideoID,
		Reason:  err.Err.Error(),
	})
}

func (r *Report) RecordAll(errs []*entity.ItemError, log *zap.Logger) {
	for _, e := range errs {
		r.Record(e, log)
	}
}

func (r *Report) Add(counter string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts[counter] += n
}

// MarkEmpty records videos that were normalized without any labeled segment.
func (r *Report) MarkEmpty(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EmptyVideos = append(r.EmptyVideos, ids...)
}

// MarkNoSegments records listable items skipped for lack of segments.
func (r *Report) MarkNoSegments(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.NoSegments = append(r.NoSegments, ids...)
	r.Counts["videos_skipped_no_segments"] += len(ids)
}

// Set records a run parameter under key.
func (r *Report) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Settings[key] = value
}

func (r *Report) Failed(videoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.Failures {
		if f.VideoID == videoID {
			return true
		}
	}
	return false
}

// Summary counts failures per "stage/kind".
func (r *Report) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, f := range r.Failures {
		out[f.Stage+"/"+f.Kind]++
	}
	return out
}

func (r *Report) Finish(log *zap.Logger) {
	summary := r.Summary()

	r.mu.Lock()
	r.FinishedAt = time.Now().UTC()
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Stage != r.Failures[j].Stage {
			return r.Failures[i].Stage < r.Failures[j].Stage
		}
		return r.Failures[i].VideoID < r.Failures[j].VideoID
	})
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt)),
		zap.Int("failed_items", len(r.Failures)),
		zap.Int("empty_videos", len(r.EmptyVideos)),
		zap.Int("skipped_no_segments", len(r.NoSegments)),
		zap.Any("counts", r.Counts),
		zap.Any("failures_by_stage", summary),
	}
	r.mu.Unlock()

	log.Info("run finished", fields...)
}
