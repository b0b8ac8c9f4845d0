package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is a labeled activity interval, in seconds relative to the start of
// the record that owns it.
type Segment struct {
	Start float64
	End   float64
	Label string
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// VideoRecord is the canonical annotation record for one video or chunk.
type VideoRecord struct {
	ID              string
	DurationSeconds float64
	DurationFrames  int
	FPS             float64
	RealFPS         float64
	Subset          Subset
	Segments        []Segment
}

// WithSubset returns a copy of the record assigned to subset.
func (v VideoRecord) WithSubset(subset Subset) VideoRecord {
	out := v
	out.Segments = append([]Segment(nil), v.Segments...)
	out.Subset = subset
	return out
}

// TimeBase is the frame rate that maps DurationFrames to seconds: the
// container rate when it was probed, the annotation rate otherwise.
func (v VideoRecord) TimeBase() float64 {
	if v.RealFPS > 0 {
		return v.RealFPS
	}
	return v.FPS
}

func (v VideoRecord) HasSegments() bool {
	return len(v.Segments) > 0
}

// Chunk is a contiguous frame range of a parent video. StartFrame and EndFrame
// are inclusive; Segments are expressed in chunk-local seconds.
type Chunk struct {
	ParentID   string
	Index      int
	StartFrame int
	EndFrame   int
	FPS        float64
	RealFPS    float64
	Subset     Subset
	Segments   []Segment
}

// ChunkID formats the identifier of the index-th chunk of parent.
func ChunkID(parent string, index int) string {
	return fmt.Sprintf("%s_%02d", parent, index)
}

func (c Chunk) ID() string {
	return ChunkID(c.ParentID, c.Index)
}

func (c Chunk) NumFrames() int {
	return c.EndFrame - c.StartFrame + 1
}

// TimeBase is the frame rate that maps frame indices to seconds.
func (c Chunk) TimeBase() float64 {
	if c.RealFPS > 0 {
		return c.RealFPS
	}
	return c.FPS
}

// Record exposes the chunk as a standalone video record.
func (c Chunk) Record() VideoRecord {
	return VideoRecord{
		ID:              c.ID(),
		DurationSeconds: float64(c.NumFrames()) / c.TimeBase(),
		DurationFrames:  c.NumFrames(),
		FPS:             c.FPS,
		RealFPS:         c.RealFPS,
		Subset:          c.Subset,
		Segments:        append([]Segment(nil), c.Segments...),
	}
}

// GroupKey returns the base video id for a record id, stripping a trailing
// two-or-more digit chunk suffix ("abc_03" -> "abc"). Ids without such a
// suffix are returned unchanged.
func GroupKey(id string) string {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || len(id)-i-1 < 2 {
		return id
	}
	if _, err := strconv.Atoi(id[i+1:]); err != nil {
		return id
	}
	return id[:i]
}
