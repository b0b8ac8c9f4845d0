package entity

// FeatureSequence holds T per-timestep feature vectors of equal dimension.
type FeatureSequence struct {
	VideoID string
	Rows    [][]float64
}

func (f FeatureSequence) Len() int {
	return len(f.Rows)
}

func (f FeatureSequence) Dim() int {
	if len(f.Rows) == 0 {
		return 0
	}
	return len(f.Rows[0])
}

// ResampledFeature is a fixed N x D feature matrix.
type ResampledFeature struct {
	VideoID string
	Rows    [][]float64
}

func (f ResampledFeature) Dim() int {
	if len(f.Rows) == 0 {
		return 0
	}
	return len(f.Rows[0])
}
