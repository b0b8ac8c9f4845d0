package usecase

import (
	"fmt"
	"math"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

type PoolType string

const (
	PoolMean PoolType = "mean"
	PoolMax  PoolType = "max"
)

// boundaryEps keeps sample points strictly inside [0, T-1].
const boundaryEps = 1e-4

type ResampleOptions struct {
	NumProposals  int
	NumSampleBins int
	Pool          PoolType
}

func DefaultResampleOptions() ResampleOptions {
	return ResampleOptions{NumProposals: 100, NumSampleBins: 3, Pool: PoolMean}
}

func (o ResampleOptions) validate() error {
	if o.NumProposals < 1 {
		return fmt.Errorf("num proposals must be at least 1, got %d", o.NumProposals)
	}
	if o.NumSampleBins < 1 {
		return fmt.Errorf("num sample bins must be at least 1, got %d", o.NumSampleBins)
	}
	if o.Pool != PoolMean && o.Pool != PoolMax {
		return fmt.Errorf("unsupported pool type %q", o.Pool)
	}
	return nil
}

// Resample maps a sequence of any length T >= 1 onto exactly NumProposals
// rows. The range [eps, T-1-eps] is cut into equal anchors; within each anchor
// NumSampleBins points are linearly interpolated and pooled.
func Resample(seq entity.FeatureSequence, opts ResampleOptions) (entity.ResampledFeature, error) {
	if err := opts.validate(); err != nil {
		return entity.ResampledFeature{}, err
	}
	t := seq.Len()
	if t == 0 {
		return entity.ResampledFeature{}, fmt.Errorf("video %s: empty feature sequence", seq.VideoID)
	}
	d := seq.Dim()
	for i, row := range seq.Rows {
		if len(row) != d {
			return entity.ResampledFeature{}, fmt.Errorf("video %s: row %d has dimension %d, want %d", seq.VideoID, i, len(row), d)
		}
	}

	out := entity.ResampledFeature{VideoID: seq.VideoID, Rows: make([][]float64, opts.NumProposals)}
	if t == 1 {
		for i := range out.Rows {
			out.Rows[i] = append([]float64(nil), seq.Rows[0]...)
		}
		return out, nil
	}

	start, end := boundaryEps, float64(t-1)-boundaryEps
	anchor := (end - start) / float64(opts.NumProposals)
	sample := make([]float64, d)
	ptr := start
	for p := 0; p < opts.NumProposals; p++ {
		acc := make([]float64, d)
		if opts.Pool == PoolMax {
			for j := range acc {
				acc[j] = math.Inf(-1)
			}
		}
		for i := 0; i < opts.NumSampleBins; i++ {
			x := ptr + float64(i)/float64(opts.NumSampleBins)*anchor
			interpolate(seq.Rows, x, sample)
			for j, v := range sample {
				if opts.Pool == PoolMax {
					acc[j] = math.Max(acc[j], v)
				} else {
					acc[j] += v
				}
			}
		}
		if opts.Pool == PoolMean {
			for j := range acc {
				acc[j] /= float64(opts.NumSampleBins)
			}
		}
		out.Rows[p] = acc
		ptr += anchor
	}
	return out, nil
}

// interpolate writes the piecewise-linear value of rows at position x into dst.
func interpolate(rows [][]float64, x float64, dst []float64) {
	last := len(rows) - 1
	i := int(math.Floor(x))
	if i < 0 {
		i = 0
	}
	if i >= last {
		i = last - 1
	}
	frac := x - float64(i)
	lo, hi := rows[i], rows[i+1]
	for j := range dst {
		dst[j] = lo[j] + (hi[j]-lo[j])*frac
	}
}

// Concat joins two resampled features of the same video row by row.
func Concat(a, b entity.ResampledFeature) (entity.ResampledFeature, error) {
	if len(a.Rows) != len(b.Rows) {
		return entity.ResampledFeature{}, fmt.Errorf("video %s: row count mismatch %d vs %d", a.VideoID, len(a.Rows), len(b.Rows))
	}
	out := entity.ResampledFeature{VideoID: a.VideoID, Rows: make([][]float64, len(a.Rows))}
	for i := range a.Rows {
		row := make([]float64, 0, len(a.Rows[i])+len(b.Rows[i]))
		row = append(row, a.Rows[i]...)
		out.Rows[i] = append(row, b.Rows[i]...)
	}
	return out, nil
}
