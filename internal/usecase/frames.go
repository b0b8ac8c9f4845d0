package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
	"github.com/childlens/bmnprep/internal/infra/metrics"
)

type FrameConfig struct {
	VideosDir string
	VideoExt  string
	// RawframesDir holds one frame directory per source video. It must be
	// absolute so the store treats it as an input location.
	RawframesDir string
	// ChunkVideoDir and ChunkFramesDir are store-relative.
	ChunkVideoDir  string
	ChunkFramesDir string
	WorkerCount    int
}

// FrameStage produces the frame-level inputs the resolver measures: decoded
// frames of source videos and, when chunking, per-chunk videos and frame
// directories. Any collaborator may be nil to disable its step.
type FrameStage struct {
	extractor port.FrameExtractor
	encoder   port.ChunkEncoder
	splitter  port.FrameSplitter
	store     port.ArtifactStore
	report    *Report
	logger    *zap.Logger
	cfg       FrameConfig
}

func NewFrameStage(
	extractor port.FrameExtractor,
	encoder port.ChunkEncoder,
	splitter port.FrameSplitter,
	store port.ArtifactStore,
	report *Report,
	logger *zap.Logger,
	cfg FrameConfig,
) *FrameStage {
	return &FrameStage{
		extractor: extractor,
		encoder:   encoder,
		splitter:  splitter,
		store:     store,
		report:    report,
		logger:    logger,
		cfg:       cfg,
	}
}

func (s *FrameStage) videoPath(id string) string {
	return filepath.Join(s.cfg.VideosDir, id+s.cfg.VideoExt)
}

// SourceFrameDir is where the frames of an unsplit video live.
func (s *FrameStage) SourceFrameDir(id string) string {
	return filepath.Join(s.cfg.RawframesDir, id)
}

// ChunkFrameDir is where the frames of a chunk are materialized.
func (s *FrameStage) ChunkFrameDir(chunkID string) string {
	return s.store.Path(path.Join(s.cfg.ChunkFramesDir, chunkID))
}

// Extract decodes each record's source video into its frame directory,
// skipping directories that already hold frames.
func (s *FrameStage) Extract(ctx context.Context, records []entity.VideoRecord) error {
	if s.extractor == nil || s.cfg.VideosDir == "" || s.cfg.RawframesDir == "" {
		return nil
	}
	s.logger.Info("extracting frames", zap.Int("videos", len(records)))
	return runPool(ctx, s.cfg.WorkerCount, records, s.logger, func(ctx context.Context, rec entity.VideoRecord, log *zap.Logger) {
		log = log.With(zap.String("video_id", rec.ID), zap.String("stage", StageExtract))
		dir := s.SourceFrameDir(rec.ID)
		if s.skip(dir, StageExtract, log) {
			return
		}
		video := s.videoPath(rec.ID)
		if _, err := os.Stat(video); err != nil {
			s.report.Record(entity.NewMissingResourceError(StageExtract, rec.ID, fmt.Errorf("video file: %w", err)), log)
			return
		}
		res, err := s.extractor.ExtractFrames(ctx, video, dir)
		if err != nil {
			s.report.Record(entity.NewDataIntegrityError(StageExtract, rec.ID, err), log)
			return
		}
		metrics.ItemsProcessedTotal.WithLabelValues(StageExtract).Inc()
		s.report.Add("frames_extracted", res.FrameCount)
	}, func(rec entity.VideoRecord, err error, log *zap.Logger) {
		s.report.Record(entity.NewDataIntegrityError(StageExtract, rec.ID, err), log)
	})
}

// Materialize writes a video file and a frame directory for every chunk.
func (s *FrameStage) Materialize(ctx context.Context, chunks map[string][]entity.Chunk) error {
	encode := s.encoder != nil && s.cfg.VideosDir != ""
	split := s.splitter != nil && s.cfg.RawframesDir != ""
	if !encode && !split {
		return nil
	}

	var jobs []entity.Chunk
	for _, parent := range sortedKeys(chunks) {
		jobs = append(jobs, chunks[parent]...)
	}
	s.logger.Info("materializing chunks",
		zap.Int("chunks", len(jobs)),
		zap.Bool("encode_video", encode),
		zap.Bool("split_frames", split),
	)

	return runPool(ctx, s.cfg.WorkerCount, jobs, s.logger, func(ctx context.Context, c entity.Chunk, log *zap.Logger) {
		log = log.With(zap.String("video_id", c.ID()), zap.String("stage", StageChunk))
		if encode {
			s.encodeChunk(ctx, c, log)
		}
		if split {
			s.splitChunk(ctx, c, log)
		}
	}, func(c entity.Chunk, err error, log *zap.Logger) {
		s.report.Record(entity.NewDataIntegrityError(StageChunk, c.ID(), err), log)
	})
}

func (s *FrameStage) encodeChunk(ctx context.Context, c entity.Chunk, log *zap.Logger) {
	name := path.Join(s.cfg.ChunkVideoDir, c.ID()+s.cfg.VideoExt)
	if s.skip(name, StageChunk, log) {
		return
	}
	video := s.videoPath(c.ParentID)
	if _, err := os.Stat(video); err != nil {
		s.report.Record(entity.NewMissingResourceError(StageChunk, c.ID(), fmt.Errorf("source video: %w", err)), log)
		return
	}
	if err := s.encoder.EncodeChunk(ctx, video, c.StartFrame, c.EndFrame, s.store.Path(name)); err != nil {
		s.report.Record(entity.NewDataIntegrityError(StageChunk, c.ID(), fmt.Errorf("encode chunk: %w", err)), log)
		return
	}
	s.report.Add("chunk_videos_written", 1)
}

func (s *FrameStage) splitChunk(ctx context.Context, c entity.Chunk, log *zap.Logger) {
	name := path.Join(s.cfg.ChunkFramesDir, c.ID())
	if s.skip(name, StageChunk, log) {
		return
	}
	copied, err := s.splitter.SplitFrames(ctx, s.SourceFrameDir(c.ParentID), s.store.Path(name), c.StartFrame, c.EndFrame)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.report.Record(entity.NewMissingResourceError(StageChunk, c.ID(), fmt.Errorf("source frames: %w", err)), log)
			return
		}
		s.report.Record(entity.NewDataIntegrityError(StageChunk, c.ID(), fmt.Errorf("split frames: %w", err)), log)
		return
	}
	metrics.ItemsProcessedTotal.WithLabelValues(StageChunk).Inc()
	s.report.Add("chunk_frames_copied", copied)
}

// skip reports whether the artifact already exists. A failed check is logged
// and treated as absent.
func (s *FrameStage) skip(name, stage string, log *zap.Logger) bool {
	exists, err := s.store.Exists(name)
	if err != nil {
		log.Warn("existence check failed, rebuilding", zap.String("artifact", name), zap.Error(err))
		return false
	}
	if exists {
		log.Debug("artifact exists, skipping", zap.String("artifact", name))
		metrics.ArtifactsSkippedTotal.WithLabelValues(stage).Inc()
	}
	return exists
}
