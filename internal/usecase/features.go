package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
	"github.com/childlens/bmnprep/internal/infra/metrics"
)

// Progress is the subset of a progress bar the feature stage drives.
type Progress interface {
	Add(n int) error
	Finish() error
}

type FeatureConfig struct {
	RGBDir string
	// FlowDir, when set, holds a second modality that is resampled and
	// appended column-wise to the RGB features.
	FlowDir     string
	WorkerCount int
	Resample    ResampleOptions
	// NewProgress is optional and receives the number of videos to process.
	NewProgress func(total int) Progress
}

// FeatureStage resamples every per-video feature file to a fixed length.
type FeatureStage struct {
	emitter *Emitter
	store   port.ArtifactStore
	codec   port.FeatureCodec
	decoder func(path string) (port.FeatureCodec, bool)
	report  *Report
	logger  *zap.Logger
	cfg     FeatureConfig
}

func NewFeatureStage(
	emitter *Emitter,
	store port.ArtifactStore,
	codec port.FeatureCodec,
	decoder func(path string) (port.FeatureCodec, bool),
	report *Report,
	logger *zap.Logger,
	cfg FeatureConfig,
) *FeatureStage {
	return &FeatureStage{
		emitter: emitter,
		store:   store,
		codec:   codec,
		decoder: decoder,
		report:  report,
		logger:  logger,
		cfg:     cfg,
	}
}

type featureJob struct {
	videoID  string
	rgbPath  string
	flowPath string
}

// Plan lists the feature files to process. With two modalities, a video
// present in only one of them is a data integrity failure.
func (s *FeatureStage) Plan() ([]featureJob, []*entity.ItemError, error) {
	rgb, err := s.listFeatures(s.cfg.RGBDir)
	if err != nil {
		return nil, nil, err
	}
	if s.cfg.FlowDir == "" {
		jobs := make([]featureJob, 0, len(rgb))
		for _, id := range sortedKeys(rgb) {
			jobs = append(jobs, featureJob{videoID: id, rgbPath: rgb[id]})
		}
		return jobs, nil, nil
	}

	flow, err := s.listFeatures(s.cfg.FlowDir)
	if err != nil {
		return nil, nil, err
	}
	var (
		jobs     []featureJob
		failures []*entity.ItemError
	)
	for _, id := range sortedKeys(rgb) {
		fp, ok := flow[id]
		if !ok {
			failures = append(failures, entity.NewDataIntegrityError(StageResample, id, fmt.Errorf("rgb features without matching flow features")))
			continue
		}
		jobs = append(jobs, featureJob{videoID: id, rgbPath: rgb[id], flowPath: fp})
	}
	for _, id := range sortedKeys(flow) {
		if _, ok := rgb[id]; !ok {
			failures = append(failures, entity.NewDataIntegrityError(StageResample, id, fmt.Errorf("flow features without matching rgb features")))
		}
	}
	return jobs, failures, nil
}

func (s *FeatureStage) listFeatures(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list features in %s: %w", dir, err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, ok := s.decoder(path); !ok {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, dup := out[id]; dup {
			s.logger.Warn("several feature files for one video, keeping the first",
				zap.String("video_id", id), zap.String("kept", prev), zap.String("ignored", path))
			continue
		}
		out[id] = path
	}
	return out, nil
}

// Run resamples every planned video on the worker pool and returns how many
// feature files were written.
func (s *FeatureStage) Run(ctx context.Context) (int, error) {
	jobs, failures, err := s.Plan()
	if err != nil {
		return 0, err
	}
	s.report.RecordAll(failures, s.logger)
	s.logger.Info("resampling features",
		zap.Int("videos", len(jobs)),
		zap.Int("num_proposals", s.cfg.Resample.NumProposals),
		zap.String("pool", string(s.cfg.Resample.Pool)),
		zap.Bool("two_stream", s.cfg.FlowDir != ""),
	)

	var progress Progress
	if s.cfg.NewProgress != nil {
		progress = s.cfg.NewProgress(len(jobs))
		defer progress.Finish()
	}

	var (
		mu      sync.Mutex
		written int
	)
	err = runPool(ctx, s.cfg.WorkerCount, jobs, s.logger, func(ctx context.Context, job featureJob, log *zap.Logger) {
		ok := s.process(ctx, job, log)
		mu.Lock()
		defer mu.Unlock()
		if ok {
			written++
		}
		if progress != nil {
			_ = progress.Add(1)
		}
	}, func(job featureJob, err error, log *zap.Logger) {
		s.report.Record(entity.NewDataIntegrityError(StageResample, job.videoID, err), log)
	})
	return written, err
}

// process returns true when a feature file was written.
func (s *FeatureStage) process(ctx context.Context, job featureJob, log *zap.Logger) bool {
	log = log.With(zap.String("video_id", job.videoID), zap.String("stage", StageResample))

	name := s.emitter.FeatureName(job.videoID, s.codec)
	exists, err := s.store.Exists(name)
	if err != nil {
		log.Warn("existence check failed, rebuilding", zap.Error(err))
	} else if exists {
		log.Debug("feature file exists, skipping", zap.String("artifact", name))
		metrics.ArtifactsSkippedTotal.WithLabelValues(StageResample).Inc()
		s.report.Add("features_skipped", 1)
		return false
	}

	out, err := s.resampleFile(job.videoID, job.rgbPath)
	if err != nil {
		s.report.Record(toItemError(StageResample, job.videoID, err), log)
		return false
	}
	if job.flowPath != "" {
		flow, err := s.resampleFile(job.videoID, job.flowPath)
		if err != nil {
			s.report.Record(toItemError(StageResample, job.videoID, err), log)
			return false
		}
		if out, err = Concat(out, flow); err != nil {
			s.report.Record(entity.NewDataIntegrityError(StageResample, job.videoID, err), log)
			return false
		}
	}

	if err := s.emitter.WriteFeature(ctx, s.codec, out); err != nil {
		s.report.Record(entity.NewDataIntegrityError(StageEmit, job.videoID, err), log)
		return false
	}
	metrics.ItemsProcessedTotal.WithLabelValues(StageResample).Inc()
	s.report.Add("features_written", 1)
	return true
}

func (s *FeatureStage) resampleFile(videoID, path string) (entity.ResampledFeature, error) {
	codec, ok := s.decoder(path)
	if !ok {
		return entity.ResampledFeature{}, fmt.Errorf("no decoder for %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entity.ResampledFeature{}, entity.NewMissingResourceError(StageResample, videoID, err)
		}
		return entity.ResampledFeature{}, fmt.Errorf("open features: %w", err)
	}
	defer f.Close()

	seq, err := codec.Decode(f, videoID)
	if err != nil {
		return entity.ResampledFeature{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Resample(seq, s.cfg.Resample)
}

// toItemError keeps an existing ItemError and classifies anything else as a
// data integrity failure.
func toItemError(stage, videoID string, err error) *entity.ItemError {
	var ie *entity.ItemError
	if errors.As(err, &ie) {
		return ie
	}
	return entity.NewDataIntegrityError(stage, videoID, err)
}
