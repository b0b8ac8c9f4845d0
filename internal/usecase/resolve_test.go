package usecase

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

type fakeCounter map[string]int

func (c fakeCounter) CountFrames(dir string) (int, error) {
	n, ok := c[filepath.Base(dir)]
	if !ok {
		return 0, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrNotExist}
	}
	if n < 0 {
		return 0, fmt.Errorf("permission denied")
	}
	return n, nil
}

func resolveRecord(id string, subset entity.Subset, segs ...entity.Segment) entity.VideoRecord {
	return entity.VideoRecord{
		ID: id, DurationSeconds: 10, DurationFrames: 300, FPS: 30, RealFPS: 30,
		Subset: subset, Segments: segs,
	}
}

func TestResolveClips(t *testing.T) {
	rec := resolveRecord("v", entity.SubsetTraining,
		entity.Segment{Start: 1, End: 2.5, Label: "playing"},
		entity.Segment{Start: 9, End: 10, Label: "reading"},
	)

	clips, err := ResolveClips(rec, "v", 300, testLabels)
	require.NoError(t, err)
	assert.Equal(t, []entity.ClipRecord{
		{DirName: "v", StartFrame: 30, DurationFrames: 46, LabelIndex: 1},
		{DirName: "v", StartFrame: 270, DurationFrames: 30, LabelIndex: 0},
	}, clips)
}

func TestResolveClipsRescalesToMeasuredFrames(t *testing.T) {
	rec := resolveRecord("v", entity.SubsetTraining, entity.Segment{Start: 1, End: 2.5, Label: "playing"})

	assert.Equal(t, 15.0, ReconciledFPS(rec, 150))
	assert.Equal(t, 30.0, ReconciledFPS(rec, 300))

	clips, err := ResolveClips(rec, "v", 150, testLabels)
	require.NoError(t, err)
	assert.Equal(t, []entity.ClipRecord{{DirName: "v", StartFrame: 15, DurationFrames: 23, LabelIndex: 1}}, clips)
}

func TestResolveClipsRejectsWholeRecord(t *testing.T) {
	rec := entity.VideoRecord{
		ID: "v", DurationSeconds: 10, DurationFrames: 100, FPS: 30, RealFPS: 30,
		Segments: []entity.Segment{
			{Start: 1, End: 2, Label: "reading"},
			{Start: 8, End: 9, Label: "playing"},
		},
	}
	_, err := ResolveClips(rec, "v", 100, testLabels)
	assert.Error(t, err)

	_, err = ResolveClips(rec, "v", 0, testLabels)
	assert.Error(t, err)
}

func TestResolveAll(t *testing.T) {
	records := []entity.VideoRecord{
		resolveRecord("train1", entity.SubsetTraining, entity.Segment{Start: 1, End: 2, Label: "drawing"}, entity.Segment{Start: 3, End: 4, Label: "reading"}),
		resolveRecord("val1", entity.SubsetValidation, entity.Segment{Start: 0, End: 1, Label: "playing"}),
		resolveRecord("test1", entity.SubsetTesting, entity.Segment{Start: 0, End: 1, Label: "playing"}),
		resolveRecord("empty", entity.SubsetTraining),
		resolveRecord("missing", entity.SubsetTraining, entity.Segment{Start: 0, End: 1, Label: "playing"}),
		resolveRecord("zero", entity.SubsetValidation, entity.Segment{Start: 0, End: 1, Label: "playing"}),
		resolveRecord("denied", entity.SubsetValidation, entity.Segment{Start: 0, End: 1, Label: "playing"}),
		resolveRecord("train1_x", entity.SubsetTraining, entity.Segment{Start: 0, End: 1, Label: "playing"}),
	}
	counter := fakeCounter{"train1": 300, "val1": 300, "test1": 300, "zero": 0, "denied": -1, "train1_x": 300}
	r := NewFrameResolver(counter, testLabels, zap.NewNop())

	res := r.ResolveAll(records, func(id string) string { return filepath.Join("/frames", id) })

	assert.Equal(t, []entity.VideoListEntry{
		{DirName: "train1", NumFrames: 300, LabelIndex: 2},
		{DirName: "train1_x", NumFrames: 300, LabelIndex: 1},
	}, res.Videos[entity.SubsetTraining])
	assert.Equal(t, []entity.VideoListEntry{{DirName: "val1", NumFrames: 300, LabelIndex: 1}}, res.Videos[entity.SubsetValidation])
	assert.Len(t, res.Clips[entity.SubsetTraining], 3)
	assert.Len(t, res.Clips[entity.SubsetValidation], 1)
	assert.Empty(t, res.Videos[entity.SubsetTesting])
	assert.Equal(t, []string{"empty"}, res.Skipped)

	kinds := map[string]entity.ErrorKind{}
	for _, f := range res.Failures {
		kinds[f.VideoID] = f.Kind
		assert.Equal(t, StageResolve, f.Stage)
	}
	assert.Equal(t, map[string]entity.ErrorKind{
		"missing": entity.KindMissingResource,
		"zero":    entity.KindDataIntegrity,
		"denied":  entity.KindDataIntegrity,
	}, kinds)
	for _, f := range res.Failures {
		if f.VideoID == "missing" {
			assert.True(t, errors.Is(f, entity.ErrMissingResource))
		}
	}
}
