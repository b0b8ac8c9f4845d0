package usecase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
)

// ReconciledFPS rescales the record's frame rate so that its duration maps
// onto the measured number of extracted frames.
func ReconciledFPS(rec entity.VideoRecord, measured int) float64 {
	fps := rec.TimeBase()
	if rec.DurationFrames > 0 && measured != rec.DurationFrames {
		fps *= float64(measured) / float64(rec.DurationFrames)
	}
	return fps
}

// ResolveClips converts rec's segments into frame-indexed clip records for a
// frame directory holding measured frames. Any segment that ends up with a
// non-positive duration invalidates the whole record.
func ResolveClips(rec entity.VideoRecord, dirName string, measured int, labels *LabelSet) ([]entity.ClipRecord, error) {
	if measured <= 0 {
		return nil, fmt.Errorf("frame directory %s holds no frames", dirName)
	}
	fps := ReconciledFPS(rec, measured)

	clips := make([]entity.ClipRecord, 0, len(rec.Segments))
	for _, seg := range rec.Segments {
		idx, ok := labels.Index(seg.Label)
		if !ok {
			return nil, fmt.Errorf("label %q is not in the label set", seg.Label)
		}
		start := int(seg.Start * fps)
		end := int(seg.End * fps)
		if end > measured-1 {
			end = measured - 1
		}
		duration := end - start + 1
		if duration <= 0 {
			return nil, fmt.Errorf("segment [%.3f, %.3f] %q maps to frames [%d, %d] at %.4f fps (%d frames measured)",
				seg.Start, seg.End, seg.Label, start, end, fps, measured)
		}
		clips = append(clips, entity.ClipRecord{
			DirName:        dirName,
			StartFrame:     start,
			DurationFrames: duration,
			LabelIndex:     idx,
		})
	}
	return clips, nil
}

// FrameResolver pairs records with their extracted frame directories.
type FrameResolver struct {
	counter port.FrameCounter
	labels  *LabelSet
	logger  *zap.Logger
}

func NewFrameResolver(counter port.FrameCounter, labels *LabelSet, logger *zap.Logger) *FrameResolver {
	return &FrameResolver{counter: counter, labels: labels, logger: logger}
}

type ResolveResult struct {
	Videos   map[entity.Subset][]entity.VideoListEntry
	Clips    map[entity.Subset][]entity.ClipRecord
	Failures []*entity.ItemError
	Skipped  []string
}

// ResolveAll resolves every training and validation record against the
// directory frameDir returns for its id. Other subsets are ignored.
func (r *FrameResolver) ResolveAll(records []entity.VideoRecord, frameDir func(id string) string) *ResolveResult {
	res := &ResolveResult{
		Videos: make(map[entity.Subset][]entity.VideoListEntry),
		Clips:  make(map[entity.Subset][]entity.ClipRecord),
	}
	for _, rec := range records {
		if !rec.Subset.HasClips() {
			continue
		}
		log := r.logger.With(zap.String("video_id", rec.ID), zap.String("stage", StageResolve))
		if !rec.HasSegments() {
			log.Warn("no annotations found for video, skipping")
			res.Skipped = append(res.Skipped, rec.ID)
			continue
		}

		entry, clips, err := r.Resolve(rec, frameDir(rec.ID))
		if err != nil {
			var ie *entity.ItemError
			if !errors.As(err, &ie) {
				ie = entity.NewDataIntegrityError(StageResolve, rec.ID, err)
			}
			res.Failures = append(res.Failures, ie)
			continue
		}
		if entry.NumFrames != rec.DurationFrames {
			log.Debug("measured frame count differs from estimate",
				zap.Int("measured", entry.NumFrames), zap.Int("estimated", rec.DurationFrames))
		}
		res.Videos[rec.Subset] = append(res.Videos[rec.Subset], entry)
		res.Clips[rec.Subset] = append(res.Clips[rec.Subset], clips...)
	}
	return res
}

// Resolve measures frameDir and builds the video-list entry and clips for rec.
func (r *FrameResolver) Resolve(rec entity.VideoRecord, frameDir string) (entity.VideoListEntry, []entity.ClipRecord, error) {
	dirName := filepath.Base(frameDir)
	measured, err := r.counter.CountFrames(frameDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entity.VideoListEntry{}, nil, entity.NewMissingResourceError(StageResolve, rec.ID, fmt.Errorf("frame directory: %w", err))
		}
		return entity.VideoListEntry{}, nil, entity.NewDataIntegrityError(StageResolve, rec.ID, fmt.Errorf("count frames: %w", err))
	}
	if measured == 0 {
		return entity.VideoListEntry{}, nil, entity.NewDataIntegrityError(StageResolve, rec.ID, fmt.Errorf("frame directory %s holds no frames", frameDir))
	}

	clips, err := ResolveClips(rec, dirName, measured, r.labels)
	if err != nil {
		return entity.VideoListEntry{}, nil, entity.NewDataIntegrityError(StageResolve, rec.ID, err)
	}
	// video-level label is the first segment's label
	label, _ := r.labels.Index(rec.Segments[0].Label)
	return entity.VideoListEntry{DirName: dirName, NumFrames: measured, LabelIndex: label}, clips, nil
}
