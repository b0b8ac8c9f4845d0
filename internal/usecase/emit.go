package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
)

const (
	CombinedAnnotationsName = "combined_annotations.json"
	VideoInfoName           = "video_info.csv"
	ReportName              = "report.json"
)

var splitAnnotationNames = map[entity.Subset]string{
	entity.SubsetTraining:   "anno_train.json",
	entity.SubsetValidation: "anno_val.json",
	entity.SubsetTesting:    "anno_test.json",
}

var listPrefixes = map[entity.Subset]string{
	entity.SubsetTraining:   "train",
	entity.SubsetValidation: "val",
}

// OutputLayout names the store-relative directories artifacts are written to.
type OutputLayout struct {
	SplitDir   string
	ListDir    string
	FeatureDir string
}

// Emitter serializes pipeline outputs into the formats the training
// framework's loaders read. Every artifact is replaced as a whole.
type Emitter struct {
	store  port.ArtifactStore
	layout OutputLayout
}

func NewEmitter(store port.ArtifactStore, layout OutputLayout) *Emitter {
	return &Emitter{store: store, layout: layout}
}

func (e *Emitter) SplitPath(name string) string   { return path.Join(e.layout.SplitDir, name) }
func (e *Emitter) ListPath(name string) string    { return path.Join(e.layout.ListDir, name) }
func (e *Emitter) FeaturePath(name string) string { return path.Join(e.layout.FeatureDir, name) }

// EncodeAnnotations renders records in the canonical annotation JSON form.
// withRealFPS adds the rfps field used by the split files.
func EncodeAnnotations(records []entity.VideoRecord, withRealFPS bool, indent bool) ([]byte, error) {
	doc := make(map[string]canonicalVideo, len(records))
	for _, r := range records {
		cv := canonicalVideo{
			DurationSecond: r.DurationSeconds,
			DurationFrame:  r.DurationFrames,
			FPS:            r.FPS,
			Annotations:    make([]canonicalAnnotation, 0, len(r.Segments)),
		}
		if withRealFPS {
			cv.RFPS = r.TimeBase()
		}
		for _, s := range r.Segments {
			cv.Annotations = append(cv.Annotations, canonicalAnnotation{Segment: []float64{s.Start, s.End}, Label: s.Label})
		}
		doc[r.ID] = cv
	}
	if indent {
		return json.MarshalIndent(doc, "", "    ")
	}
	return json.Marshal(doc)
}

func (e *Emitter) WriteCombinedAnnotations(ctx context.Context, records []entity.VideoRecord) error {
	data, err := EncodeAnnotations(records, false, true)
	if err != nil {
		return fmt.Errorf("encode combined annotations: %w", err)
	}
	return e.write(ctx, e.SplitPath(CombinedAnnotationsName), data)
}

// WriteSplitAnnotations writes one annotation file per subset plus
// anno_full.json. Records without a subset or without segments are left out.
func (e *Emitter) WriteSplitAnnotations(ctx context.Context, records []entity.VideoRecord) error {
	bySubset := make(map[entity.Subset][]entity.VideoRecord)
	var full []entity.VideoRecord
	for _, r := range records {
		if r.Subset == "" || !r.HasSegments() {
			continue
		}
		bySubset[r.Subset] = append(bySubset[r.Subset], r)
		full = append(full, r)
	}
	for _, subset := range []entity.Subset{entity.SubsetTraining, entity.SubsetValidation, entity.SubsetTesting} {
		data, err := EncodeAnnotations(bySubset[subset], true, false)
		if err != nil {
			return fmt.Errorf("encode %s annotations: %w", subset, err)
		}
		if err := e.write(ctx, e.SplitPath(splitAnnotationNames[subset]), data); err != nil {
			return err
		}
	}
	data, err := EncodeAnnotations(full, true, false)
	if err != nil {
		return fmt.Errorf("encode full annotations: %w", err)
	}
	return e.write(ctx, e.SplitPath("anno_full.json"), data)
}

var videoInfoHeader = []string{"video", "numFrame", "seconds", "fps", "rfps", "subset", "featureFrame"}

// WriteVideoInfo writes the per-video info CSV, grouped by subset in the
// order training, testing, validation.
func (e *Emitter) WriteVideoInfo(ctx context.Context, records []entity.VideoRecord) error {
	rank := map[entity.Subset]int{entity.SubsetTraining: 0, entity.SubsetTesting: 1, entity.SubsetValidation: 2}
	rows := make([]entity.VideoRecord, 0, len(records))
	for _, r := range records {
		if _, ok := rank[r.Subset]; ok && r.HasSegments() {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rank[rows[i].Subset] != rank[rows[j].Subset] {
			return rank[rows[i].Subset] < rank[rows[j].Subset]
		}
		return rows[i].ID < rows[j].ID
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(videoInfoHeader); err != nil {
		return fmt.Errorf("write video info header: %w", err)
	}
	for _, r := range rows {
		frames := strconv.Itoa(r.DurationFrames)
		err := w.Write([]string{
			r.ID,
			frames,
			formatFloat(r.DurationSeconds),
			formatFloat(r.FPS),
			formatFloat(r.TimeBase()),
			string(r.Subset),
			frames,
		})
		if err != nil {
			return fmt.Errorf("write video info row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush video info: %w", err)
	}
	return e.write(ctx, e.SplitPath(VideoInfoName), buf.Bytes())
}

// WriteVideoLists writes train_video.txt and val_video.txt.
func (e *Emitter) WriteVideoLists(ctx context.Context, videos map[entity.Subset][]entity.VideoListEntry) error {
	for _, subset := range []entity.Subset{entity.SubsetTraining, entity.SubsetValidation} {
		lines := make([]string, 0, len(videos[subset]))
		for _, v := range videos[subset] {
			lines = append(lines, fmt.Sprintf("%s %d %d", v.DirName, v.NumFrames, v.LabelIndex))
		}
		name := e.ListPath(listPrefixes[subset] + "_video.txt")
		if err := e.write(ctx, name, []byte(strings.Join(lines, "\n"))); err != nil {
			return err
		}
	}
	return nil
}

// WriteClipLists writes train_clip.txt and val_clip.txt.
func (e *Emitter) WriteClipLists(ctx context.Context, clips map[entity.Subset][]entity.ClipRecord) error {
	for _, subset := range []entity.Subset{entity.SubsetTraining, entity.SubsetValidation} {
		lines := make([]string, 0, len(clips[subset]))
		for _, c := range clips[subset] {
			lines = append(lines, fmt.Sprintf("%s %d %d %d", c.DirName, c.StartFrame, c.DurationFrames, c.LabelIndex))
		}
		name := e.ListPath(listPrefixes[subset] + "_clip.txt")
		if err := e.write(ctx, name, []byte(strings.Join(lines, "\n"))); err != nil {
			return err
		}
	}
	return nil
}

// FeatureName is the store-relative path of a video's resampled feature file.
func (e *Emitter) FeatureName(videoID string, codec port.FeatureCodec) string {
	return e.FeaturePath(videoID + codec.Ext())
}

func (e *Emitter) WriteFeature(ctx context.Context, codec port.FeatureCodec, f entity.ResampledFeature) error {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, f); err != nil {
		return fmt.Errorf("encode feature %s: %w", f.VideoID, err)
	}
	return e.write(ctx, e.FeatureName(f.VideoID, codec), buf.Bytes())
}

func (e *Emitter) WriteReport(ctx context.Context, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return e.write(ctx, ReportName, data)
}

func (e *Emitter) write(ctx context.Context, name string, data []byte) error {
	if err := e.store.Write(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
