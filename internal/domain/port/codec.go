package port

import (
	"io"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

// FeatureCodec reads raw feature sequences and writes resampled features in
// one on-disk format.
type FeatureCodec interface {
	Ext() string
	Decode(r io.Reader, videoID string) (entity.FeatureSequence, error)
	Encode(w io.Writer, f entity.ResampledFeature) error
}
