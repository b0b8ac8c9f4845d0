package usecase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/infra/metrics"
)

type PrepareConfig struct {
	AnnotationsDir string
	ChunkSize      int
	TrainRatio     float64
	Mode           PartitionMode
	// ResolveFrames enables the video and clip lists; it needs extracted
	// frame directories.
	ResolveFrames bool
	// ClipInterval and FrameInterval are the upstream sampling granularity
	// the features were computed with. They are recorded in the report.
	ClipInterval  int
	FrameInterval int
}

// PrepareDataset runs the whole preparation pipeline once over a fixed set of
// inputs. Item-level failures are recorded in the report and never abort the
// run; only configuration problems, output write failures and cancellation do.
type PrepareDataset struct {
	normalizer *Normalizer
	frames     *FrameStage
	resolver   *FrameResolver
	features   *FeatureStage
	emitter    *Emitter
	report     *Report
	logger     *zap.Logger
	cfg        PrepareConfig
}

// NewPrepareDataset wires the stages. features may be nil when no feature
// directory is configured.
func NewPrepareDataset(
	normalizer *Normalizer,
	frames *FrameStage,
	resolver *FrameResolver,
	features *FeatureStage,
	emitter *Emitter,
	report *Report,
	logger *zap.Logger,
	cfg PrepareConfig,
) *PrepareDataset {
	return &PrepareDataset{
		normalizer: normalizer,
		frames:     frames,
		resolver:   resolver,
		features:   features,
		emitter:    emitter,
		report:     report,
		logger:     logger,
		cfg:        cfg,
	}
}

func (uc *PrepareDataset) Execute(ctx context.Context) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "PrepareDataset.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", uc.report.RunID),
		attribute.Int("run.chunk_size", uc.cfg.ChunkSize),
		attribute.Float64("run.train_ratio", uc.cfg.TrainRatio),
	)
	uc.recordSettings()

	err := uc.run(ctx)
	uc.report.Finish(uc.logger)
	if werr := uc.emitter.WriteReport(context.WithoutCancel(ctx), uc.report); werr != nil {
		uc.logger.Error("failed to write run report", zap.Error(werr))
		if err == nil {
			err = werr
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (uc *PrepareDataset) run(ctx context.Context) error {
	var records []entity.VideoRecord
	err := uc.stage(ctx, StageNormalize, func(ctx context.Context) error {
		res, err := uc.normalizer.NormalizeDir(ctx, uc.cfg.AnnotationsDir)
		if err != nil {
			return err
		}
		uc.report.RecordAll(res.Failures, uc.logger)
		uc.report.MarkEmpty(res.Empty)
		uc.report.Add("videos_normalized", len(res.Records))
		metrics.ItemsProcessedTotal.WithLabelValues(StageNormalize).Add(float64(len(res.Records)))
		records = res.Records
		return uc.emitter.WriteCombinedAnnotations(ctx, records)
	})
	if err != nil {
		return err
	}

	var assigned []entity.VideoRecord
	err = uc.stage(ctx, StagePartition, func(ctx context.Context) error {
		groups := GroupRecords(records, func(id string) string { return id })
		res, err := Partition(groups, uc.cfg.TrainRatio, uc.cfg.Mode)
		if err != nil {
			return err
		}
		for _, r := range records {
			if !r.HasSegments() {
				continue
			}
			subset, ok := res.Assignment.Of(r.ID)
			if !ok {
				return fmt.Errorf("video %s has no subset assignment", r.ID)
			}
			assigned = append(assigned, r.WithSubset(subset))
		}
		for _, s := range []entity.Subset{entity.SubsetTraining, entity.SubsetValidation, entity.SubsetTesting} {
			uc.report.Add("videos_"+string(s), res.Counts[s])
		}
		uc.logger.Info("videos partitioned",
			zap.Int("groups", len(groups)),
			zap.Float64("total_seconds", res.Total),
			zap.Float64("training_fraction", res.Fraction(entity.SubsetTraining)),
			zap.Float64("validation_fraction", res.Fraction(entity.SubsetValidation)),
			zap.Float64("testing_fraction", res.Fraction(entity.SubsetTesting)),
		)
		metrics.ItemsProcessedTotal.WithLabelValues(StagePartition).Add(float64(len(assigned)))
		return nil
	})
	if err != nil {
		return err
	}

	var split *SplitResult
	err = uc.stage(ctx, StageChunk, func(ctx context.Context) error {
		var failures []*entity.ItemError
		split, failures = SplitRecords(assigned, uc.cfg.ChunkSize)
		uc.report.RecordAll(failures, uc.logger)
		n := 0
		for _, cs := range split.Chunks {
			n += len(cs)
		}
		uc.report.Add("chunks", n)
		if err := uc.emitter.WriteSplitAnnotations(ctx, split.Records); err != nil {
			return err
		}
		return uc.emitter.WriteVideoInfo(ctx, split.Records)
	})
	if err != nil {
		return err
	}

	err = uc.stage(ctx, StageExtract, func(ctx context.Context) error {
		if err := uc.frames.Extract(ctx, assigned); err != nil {
			return err
		}
		return uc.frames.Materialize(ctx, split.Chunks)
	})
	if err != nil {
		return err
	}

	if uc.cfg.ResolveFrames {
		err = uc.stage(ctx, StageResolve, func(ctx context.Context) error {
			return uc.resolve(ctx, split)
		})
		if err != nil {
			return err
		}
	} else {
		uc.logger.Warn("no frame directory configured, video and clip lists not written")
	}

	if uc.features != nil {
		return uc.stage(ctx, StageResample, func(ctx context.Context) error {
			n, err := uc.features.Run(ctx)
			uc.logger.Info("features resampled", zap.Int("written", n))
			return err
		})
	}
	return nil
}

func (uc *PrepareDataset) resolve(ctx context.Context, split *SplitResult) error {
	chunkIDs := make(map[string]bool)
	for _, cs := range split.Chunks {
		for _, c := range cs {
			chunkIDs[c.ID()] = true
		}
	}
	frameDir := func(id string) string {
		if chunkIDs[id] {
			return uc.frames.ChunkFrameDir(id)
		}
		return uc.frames.SourceFrameDir(id)
	}

	// items that already failed upstream are not reported twice
	pending := make([]entity.VideoRecord, 0, len(split.Records))
	for _, r := range split.Records {
		if !uc.report.Failed(r.ID) {
			pending = append(pending, r)
		}
	}

	res := uc.resolver.ResolveAll(pending, frameDir)
	uc.report.RecordAll(res.Failures, uc.logger)
	uc.report.MarkNoSegments(res.Skipped)
	if err := uc.emitter.WriteVideoLists(ctx, res.Videos); err != nil {
		return err
	}
	if err := uc.emitter.WriteClipLists(ctx, res.Clips); err != nil {
		return err
	}
	for subset, clips := range res.Clips {
		metrics.ClipsEmittedTotal.WithLabelValues(string(subset)).Add(float64(len(clips)))
		uc.report.Add("clips_"+string(subset), len(clips))
	}
	for _, videos := range res.Videos {
		metrics.ItemsProcessedTotal.WithLabelValues(StageResolve).Add(float64(len(videos)))
	}
	return nil
}

func (uc *PrepareDataset) recordSettings() {
	settings := map[string]any{
		"chunk_size":     uc.cfg.ChunkSize,
		"train_ratio":    uc.cfg.TrainRatio,
		"split_mode":     string(uc.cfg.Mode),
		"clip_interval":  uc.cfg.ClipInterval,
		"frame_interval": uc.cfg.FrameInterval,
	}
	fields := make([]zap.Field, 0, len(settings))
	for _, k := range sortedKeys(settings) {
		uc.report.Set(k, settings[k])
		fields = append(fields, zap.Any(k, settings[k]))
	}
	uc.logger.Info("run settings", fields...)
}

// stage runs fn under its own span and records its wall time.
func (uc *PrepareDataset) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := otel.Tracer("usecase").Start(ctx, "PrepareDataset."+name)
	defer span.End()

	start := time.Now()
	uc.logger.Info("stage started", zap.String("stage", name))
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	uc.logger.Info("stage finished", zap.String("stage", name), zap.Duration("elapsed", elapsed))
	return nil
}
