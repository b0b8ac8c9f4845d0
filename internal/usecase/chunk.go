package usecase

import (
	"fmt"
	"math"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

// SplitChunks cuts rec into consecutive chunks of chunkSize frames; the last
// chunk may be shorter. Each segment overlapping a chunk is clipped to it and
// re-expressed in chunk-local seconds. Pieces that collapse to zero frames
// are dropped.
func SplitChunks(rec entity.VideoRecord, chunkSize int) ([]entity.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	fps := rec.TimeBase()
	if fps <= 0 {
		return nil, fmt.Errorf("video %s: non-positive fps %v", rec.ID, fps)
	}
	if rec.DurationFrames <= 0 {
		return nil, fmt.Errorf("video %s: non-positive frame count %d", rec.ID, rec.DurationFrames)
	}

	type frameSpan struct {
		a, b  int
		label string
	}
	spans := make([]frameSpan, 0, len(rec.Segments))
	for _, s := range rec.Segments {
		spans = append(spans, frameSpan{
			a:     int(math.Round(s.Start * fps)),
			b:     int(math.Round(s.End * fps)),
			label: s.Label,
		})
	}

	chunks := make([]entity.Chunk, 0, rec.DurationFrames/chunkSize+1)
	for start := 0; start < rec.DurationFrames; start += chunkSize {
		end := min(start+chunkSize-1, rec.DurationFrames-1)
		c := entity.Chunk{
			ParentID:   rec.ID,
			Index:      start/chunkSize + 1,
			StartFrame: start,
			EndFrame:   end,
			FPS:        rec.FPS,
			RealFPS:    rec.RealFPS,
			Subset:     rec.Subset,
		}
		for _, sp := range spans {
			if sp.a > end || sp.b < start {
				continue
			}
			localStart := max(0, sp.a-start)
			localEnd := min(sp.b-start, end-start)
			if localEnd <= localStart {
				continue
			}
			c.Segments = append(c.Segments, entity.Segment{
				Start: float64(localStart) / fps,
				End:   float64(localEnd) / fps,
				Label: sp.label,
			})
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// SplitResult carries the records that continue down the pipeline: chunk
// records for videos that were split, the original record otherwise.
type SplitResult struct {
	Records []entity.VideoRecord
	Chunks  map[string][]entity.Chunk
}

// SplitRecords applies SplitChunks to every record longer than chunkSize.
// A chunkSize of zero disables splitting.
func SplitRecords(records []entity.VideoRecord, chunkSize int) (*SplitResult, []*entity.ItemError) {
	res := &SplitResult{Chunks: make(map[string][]entity.Chunk)}
	var failures []*entity.ItemError
	for _, rec := range records {
		if chunkSize <= 0 || rec.DurationFrames <= chunkSize {
			res.Records = append(res.Records, rec)
			continue
		}
		chunks, err := SplitChunks(rec, chunkSize)
		if err != nil {
			failures = append(failures, entity.NewDataIntegrityError(StageChunk, rec.ID, err))
			continue
		}
		res.Chunks[rec.ID] = chunks
		for _, c := range chunks {
			res.Records = append(res.Records, c.Record())
		}
	}
	return res, failures
}
