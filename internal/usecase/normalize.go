package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
)

type NormalizeConfig struct {
	// FPS is used when a raw record carries no frame rate.
	FPS float64
	// VideosDir enables container probing when set; files are looked up as
	// VideosDir/{id}{VideoExt}.
	VideosDir string
	VideoExt  string
	// SkipFile is a file name ignored while walking the annotation tree,
	// typically the combined output written into the same directory.
	SkipFile string
}

// Normalizer converts raw annotation documents into canonical video records.
type Normalizer struct {
	parser SchemaParser
	labels *LabelSet
	prober port.FrameProber
	cfg    NormalizeConfig
	logger *zap.Logger
}

// NewNormalizer builds a normalizer. prober may be nil, in which case frame
// counts are always derived from duration and fps.
func NewNormalizer(parser SchemaParser, labels *LabelSet, prober port.FrameProber, logger *zap.Logger, cfg NormalizeConfig) *Normalizer {
	return &Normalizer{parser: parser, labels: labels, prober: prober, cfg: cfg, logger: logger}
}

type NormalizeResult struct {
	Records  []entity.VideoRecord
	Failures []*entity.ItemError
	// Empty lists ids of videos that produced no labeled segment. They are
	// still present in Records.
	Empty []string
}

// NormalizeDir parses every *.json file below dir. Records are returned sorted
// by id; when two files define the same id the later file (in path order) wins.
func (n *Normalizer) NormalizeDir(ctx context.Context, dir string) (*NormalizeResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		if n.cfg.SkipFile != "" && d.Name() == n.cfg.SkipFile {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk annotations dir: %w", err)
	}
	sort.Strings(paths)
	n.logger.Info("annotation files found", zap.Int("count", len(paths)), zap.String("dir", dir))

	byID := make(map[string]entity.VideoRecord)
	res := &NormalizeResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read annotation file: %w", err)
		}
		records, failures := n.NormalizeDocument(ctx, data, path)
		res.Failures = append(res.Failures, failures...)
		for _, r := range records {
			if _, dup := byID[r.ID]; dup {
				n.logger.Warn("duplicate video id, keeping the later record",
					zap.String("video_id", r.ID), zap.String("file", path))
			}
			byID[r.ID] = r
		}
	}

	for _, id := range sortedKeys(byID) {
		r := byID[id]
		res.Records = append(res.Records, r)
		if !r.HasSegments() {
			res.Empty = append(res.Empty, id)
		}
	}
	return res, nil
}

// NormalizeDocument parses one raw document. A document that cannot be
// decoded yields a single failure keyed by its file name.
func (n *Normalizer) NormalizeDocument(ctx context.Context, data []byte, source string) ([]entity.VideoRecord, []*entity.ItemError) {
	raws, err := n.parser.Parse(data, n.labels)
	if err != nil {
		id := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		return nil, []*entity.ItemError{entity.NewDataIntegrityError(StageNormalize, id, err)}
	}

	var (
		records  []entity.VideoRecord
		failures []*entity.ItemError
	)
	for _, raw := range raws {
		rec, err := n.Normalize(ctx, raw)
		if err != nil {
			var ie *entity.ItemError
			if !errors.As(err, &ie) {
				ie = entity.NewDataIntegrityError(StageNormalize, raw.ID, err)
			}
			failures = append(failures, ie)
			continue
		}
		if !rec.HasSegments() {
			n.logger.Warn("no labeled segments found for video", zap.String("video_id", rec.ID))
		}
		records = append(records, rec)
	}
	return records, failures
}

// Normalize reconciles durations and clamps segments for one raw video.
func (n *Normalizer) Normalize(ctx context.Context, raw RawVideo) (entity.VideoRecord, error) {
	fps := raw.FPS
	if fps <= 0 {
		fps = n.cfg.FPS
	}
	rec := entity.VideoRecord{
		ID:              raw.ID,
		DurationSeconds: raw.DurationSeconds,
		DurationFrames:  raw.DurationFrames,
		FPS:             fps,
		RealFPS:         fps,
	}

	if n.prober != nil && n.cfg.VideosDir != "" {
		probed, err := n.probe(ctx, raw.ID)
		if err != nil {
			return entity.VideoRecord{}, err
		}
		rec.DurationFrames = probed.FrameCount
		if probed.FPS > 0 {
			rec.RealFPS = probed.FPS
		}
		if rec.DurationSeconds <= 0 && probed.Duration > 0 {
			rec.DurationSeconds = probed.Duration
		}
	}

	if rec.DurationSeconds <= 0 && rec.DurationFrames > 0 {
		rec.DurationSeconds = float64(rec.DurationFrames) / fps
	}
	if rec.DurationSeconds <= 0 {
		return entity.VideoRecord{}, entity.NewDataIntegrityError(StageNormalize, raw.ID,
			fmt.Errorf("non-positive duration %v", raw.DurationSeconds))
	}
	if rec.DurationFrames <= 0 {
		rec.DurationFrames = int(rec.DurationSeconds * fps)
	}
	if rec.DurationFrames <= 0 {
		return entity.VideoRecord{}, entity.NewDataIntegrityError(StageNormalize, raw.ID,
			fmt.Errorf("duration %.3fs at %.3f fps is shorter than one frame", rec.DurationSeconds, fps))
	}

	for _, s := range raw.Segments {
		s.Start = max(s.Start, 0)
		s.End = min(s.End, rec.DurationSeconds)
		if s.Start >= s.End {
			n.logger.Debug("dropping empty segment",
				zap.String("video_id", raw.ID), zap.String("label", s.Label),
				zap.Float64("start", s.Start), zap.Float64("end", s.End))
			continue
		}
		rec.Segments = append(rec.Segments, s)
	}
	return rec, nil
}

func (n *Normalizer) probe(ctx context.Context, id string) (*port.ProbeResult, error) {
	path := filepath.Join(n.cfg.VideosDir, id+n.cfg.VideoExt)
	if _, err := os.Stat(path); err != nil {
		return nil, entity.NewMissingResourceError(StageNormalize, id, fmt.Errorf("video file: %w", err))
	}
	res, err := n.prober.Probe(ctx, path)
	if err != nil {
		return nil, entity.NewMissingResourceError(StageNormalize, id, fmt.Errorf("probe video: %w", err))
	}
	if res.FrameCount <= 0 {
		return nil, entity.NewDataIntegrityError(StageNormalize, id, fmt.Errorf("probe reported %d frames", res.FrameCount))
	}
	return res, nil
}
