package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

func TestSplitChunksScenario(t *testing.T) {
	rec := entity.VideoRecord{
		ID:              "119281",
		DurationSeconds: 10000.0 / 30,
		DurationFrames:  10000,
		FPS:             30,
		Subset:          entity.SubsetTraining,
		Segments:        []entity.Segment{{Start: 130, End: 4300.0 / 30, Label: "reading"}},
	}
	chunks, err := SplitChunks(rec, 4000)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "119281_01", chunks[0].ID())
	assert.Equal(t, 0, chunks[0].StartFrame)
	assert.Equal(t, 3999, chunks[0].EndFrame)
	require.Len(t, chunks[0].Segments, 1)
	assert.InDelta(t, 3900.0/30, chunks[0].Segments[0].Start, 1e-9)
	assert.InDelta(t, 3999.0/30, chunks[0].Segments[0].End, 1e-9)

	assert.Equal(t, 4000, chunks[1].StartFrame)
	require.Len(t, chunks[1].Segments, 1)
	assert.InDelta(t, 0, chunks[1].Segments[0].Start, 1e-9)
	assert.InDelta(t, 10, chunks[1].Segments[0].End, 1e-9)

	assert.Empty(t, chunks[2].Segments)
	assert.Equal(t, 2000, chunks[2].NumFrames())
	assert.Equal(t, 9999, chunks[2].EndFrame)

	for _, c := range chunks {
		assert.Equal(t, entity.SubsetTraining, c.Subset)
	}
}

func TestSplitChunksCoverFramesExactly(t *testing.T) {
	for _, tc := range []struct{ frames, size int }{
		{10000, 4000}, {8000, 4000}, {4001, 4000}, {7, 3}, {1, 1}, {100, 7},
	} {
		rec := entity.VideoRecord{ID: "v", DurationFrames: tc.frames, DurationSeconds: float64(tc.frames) / 25, FPS: 25}
		chunks, err := SplitChunks(rec, tc.size)
		require.NoError(t, err)

		next, total := 0, 0
		for i, c := range chunks {
			assert.Equal(t, i+1, c.Index)
			assert.Equal(t, next, c.StartFrame, "chunks are contiguous")
			assert.LessOrEqual(t, c.NumFrames(), tc.size)
			next = c.EndFrame + 1
			total += c.NumFrames()
		}
		assert.Equal(t, tc.frames, total)
		assert.Equal(t, tc.frames, next)
	}
}

func TestSplitChunksBoundarySum(t *testing.T) {
	fps := 30.0
	rec := entity.VideoRecord{
		ID: "v", DurationFrames: 12000, DurationSeconds: 400, FPS: fps,
		Segments: []entity.Segment{
			{Start: 30, End: 40, Label: "reading"},
			{Start: 60, End: 70, Label: "playing"},
			{Start: 133.3, End: 133.4, Label: "drawing"},
		},
	}
	chunks, err := SplitChunks(rec, 1000)
	require.NoError(t, err)

	for _, seg := range rec.Segments {
		want := seg.Duration() * fps
		var got float64
		pieces := 0
		for _, c := range chunks {
			for _, s := range c.Segments {
				if s.Label == seg.Label {
					got += s.Duration() * fps
					pieces++
				}
			}
		}
		assert.InDelta(t, want, got, 1+1e-6, "label %s", seg.Label)
		assert.LessOrEqual(t, pieces, 2)
	}
}

func TestSplitChunksLocalSegmentsStayInChunk(t *testing.T) {
	rec := entity.VideoRecord{
		ID: "v", DurationFrames: 900, DurationSeconds: 30, FPS: 30,
		Segments: []entity.Segment{{Start: 5, End: 29.9, Label: "reading"}},
	}
	chunks, err := SplitChunks(rec, 400)
	require.NoError(t, err)
	for _, c := range chunks {
		limit := float64(c.NumFrames()-1) / 30
		for _, s := range c.Segments {
			assert.GreaterOrEqual(t, s.Start, 0.0)
			assert.LessOrEqual(t, s.End, limit+1e-9)
			assert.Less(t, s.Start, s.End)
		}
	}
}

func TestSplitChunksErrors(t *testing.T) {
	_, err := SplitChunks(entity.VideoRecord{ID: "v", DurationFrames: 10, FPS: 30}, 0)
	assert.Error(t, err)
	_, err = SplitChunks(entity.VideoRecord{ID: "v", DurationFrames: 10}, 5)
	assert.Error(t, err)
	_, err = SplitChunks(entity.VideoRecord{ID: "v", FPS: 30}, 5)
	assert.Error(t, err)
}

func TestSplitRecords(t *testing.T) {
	records := []entity.VideoRecord{
		{ID: "long", DurationFrames: 250, DurationSeconds: 10, FPS: 25, Subset: entity.SubsetValidation},
		{ID: "short", DurationFrames: 100, DurationSeconds: 4, FPS: 25, Subset: entity.SubsetTraining},
		{ID: "broken", DurationFrames: 300, DurationSeconds: 10},
	}
	res, failures := SplitRecords(records, 100)
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].VideoID)

	ids := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"long_01", "long_02", "long_03", "short"}, ids)
	assert.Len(t, res.Chunks["long"], 3)
	assert.Equal(t, entity.SubsetValidation, res.Records[2].Subset)
	assert.Equal(t, 50, res.Records[2].DurationFrames)

	res, failures = SplitRecords(records, 0)
	assert.Empty(t, failures)
	assert.Len(t, res.Records, 3)
	assert.Empty(t, res.Chunks)
}
