package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

const (
	FormatSuperAnnotate = "superannotate"
	FormatSegments      = "segments"
	FormatActivityNet   = "activitynet"
)

// RawVideo is what a schema parser extracts from one raw record before
// durations are reconciled. Zero DurationFrames or FPS means "not provided".
type RawVideo struct {
	ID              string
	DurationSeconds float64
	DurationFrames  int
	FPS             float64
	Segments        []entity.Segment
}

// SchemaParser turns one raw annotation document into zero or more videos.
// Only segments whose label is in the label set are returned.
type SchemaParser interface {
	Format() string
	Parse(data []byte, labels *LabelSet) ([]RawVideo, error)
}

var schemaParsers = map[string]SchemaParser{
	FormatSuperAnnotate: superAnnotateParser{},
	FormatSegments:      segmentsParser{},
	FormatActivityNet:   activityNetParser{},
}

// ParserFor looks up the parser registered for format.
func ParserFor(format string) (SchemaParser, error) {
	p, ok := schemaParsers[format]
	if !ok {
		known := make([]string, 0, len(schemaParsers))
		for k := range schemaParsers {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, entity.NewConfigurationError(
			fmt.Errorf("unknown annotation format %q (known: %s)", format, strings.Join(known, ", ")))
	}
	return p, nil
}

// LabelSet is the ordered label vocabulary. Order defines label indices.
type LabelSet struct {
	labels []string
	index  map[string]int
}

func NewLabelSet(labels []string) *LabelSet {
	ls := &LabelSet{labels: append([]string(nil), labels...), index: make(map[string]int, len(labels))}
	for i, l := range labels {
		if _, dup := ls.index[l]; !dup {
			ls.index[l] = i
		}
	}
	return ls
}

func (ls *LabelSet) Contains(label string) bool {
	_, ok := ls.index[label]
	return ok
}

func (ls *LabelSet) Index(label string) (int, bool) {
	i, ok := ls.index[label]
	return i, ok
}

func (ls *LabelSet) Labels() []string {
	return append([]string(nil), ls.labels...)
}

// FirstMatch returns the first name, in the given order, that belongs to the set.
func (ls *LabelSet) FirstMatch(names []string) (string, bool) {
	for _, n := range names {
		if ls.Contains(n) {
			return n, true
		}
	}
	return "", false
}

const microsecond = 1_000_000.0

type superAnnotateDoc struct {
	Metadata struct {
		Name     string  `json:"name"`
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Instances []struct {
		Meta struct {
			Start     float64 `json:"start"`
			End       float64 `json:"end"`
			ClassName string  `json:"className"`
		} `json:"meta"`
		Parameters []struct {
			Timestamps []struct {
				Attributes []struct {
					Name string `json:"name"`
				} `json:"attributes"`
			} `json:"timestamps"`
		} `json:"parameters"`
	} `json:"instances"`
}

// superAnnotateParser reads per-video exports with microsecond timestamps and
// labels carried as attribute names on instance timestamps.
type superAnnotateParser struct{}

func (superAnnotateParser) Format() string { return FormatSuperAnnotate }

func (superAnnotateParser) Parse(data []byte, labels *LabelSet) ([]RawVideo, error) {
	var doc superAnnotateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode superannotate document: %w", err)
	}
	if doc.Metadata.Name == "" {
		return nil, fmt.Errorf("superannotate document has no metadata.name")
	}

	v := RawVideo{
		ID:              trimVideoExt(doc.Metadata.Name),
		DurationSeconds: doc.Metadata.Duration / microsecond,
	}

	for _, inst := range doc.Instances {
		if inst.Meta.ClassName == "Location" {
			continue
		}
		for _, param := range inst.Parameters {
			if len(param.Timestamps) == 0 || len(param.Timestamps[0].Attributes) == 0 {
				continue
			}
			var names []string
			for _, ts := range param.Timestamps {
				for _, attr := range ts.Attributes {
					names = append(names, attr.Name)
				}
			}
			label, ok := labels.FirstMatch(names)
			if !ok {
				continue
			}
			v.Segments = append(v.Segments, entity.Segment{
				Start: inst.Meta.Start / microsecond,
				End:   inst.Meta.End / microsecond,
				Label: label,
			})
		}
	}
	return []RawVideo{v}, nil
}

type canonicalAnnotation struct {
	Segment []float64 `json:"segment"`
	Label   string    `json:"label"`
}

type canonicalVideo struct {
	DurationSecond float64               `json:"duration_second"`
	DurationFrame  int                   `json:"duration_frame"`
	FPS            float64               `json:"fps,omitempty"`
	RFPS           float64               `json:"rfps,omitempty"`
	Annotations    []canonicalAnnotation `json:"annotations"`
}

// segmentsParser reads the canonical {id: {duration_second, annotations}} map,
// which is also what this pipeline emits.
type segmentsParser struct{}

func (segmentsParser) Format() string { return FormatSegments }

func (segmentsParser) Parse(data []byte, labels *LabelSet) ([]RawVideo, error) {
	var doc map[string]canonicalVideo
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode segments document: %w", err)
	}
	out := make([]RawVideo, 0, len(doc))
	for _, id := range sortedKeys(doc) {
		cv := doc[id]
		out = append(out, RawVideo{
			ID:              id,
			DurationSeconds: cv.DurationSecond,
			DurationFrames:  cv.DurationFrame,
			FPS:             cv.FPS,
			Segments:        filterAnnotations(cv.Annotations, labels),
		})
	}
	return out, nil
}

type activityNetDoc struct {
	Database map[string]struct {
		Duration    float64               `json:"duration"`
		Annotations []canonicalAnnotation `json:"annotations"`
	} `json:"database"`
}

// activityNetParser reads {"database": {id: {duration, annotations}}}.
// A subset stored in the document is ignored; partitioning decides subsets.
type activityNetParser struct{}

func (activityNetParser) Format() string { return FormatActivityNet }

func (activityNetParser) Parse(data []byte, labels *LabelSet) ([]RawVideo, error) {
	var doc activityNetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode activitynet document: %w", err)
	}
	out := make([]RawVideo, 0, len(doc.Database))
	for _, id := range sortedKeys(doc.Database) {
		v := doc.Database[id]
		out = append(out, RawVideo{
			ID:              id,
			DurationSeconds: v.Duration,
			Segments:        filterAnnotations(v.Annotations, labels),
		})
	}
	return out, nil
}

func filterAnnotations(in []canonicalAnnotation, labels *LabelSet) []entity.Segment {
	var out []entity.Segment
	for _, a := range in {
		if len(a.Segment) != 2 || !labels.Contains(a.Label) {
			continue
		}
		out = append(out, entity.Segment{Start: a.Segment[0], End: a.Segment[1], Label: a.Label})
	}
	return out
}

func trimVideoExt(name string) string {
	for _, ext := range []string{".MP4", ".mp4"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
