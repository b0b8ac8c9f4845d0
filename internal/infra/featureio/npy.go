package featureio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
)

// maxNPYElements bounds the array size accepted from a feature file header.
const maxNPYElements = 1 << 28

// NPY reads little-endian float32/float64 arrays in C order and writes
// resampled features as float64 (N, D) arrays.
type NPY struct{}

var _ port.FeatureCodec = NPY{}

func (NPY) Ext() string { return ".npy" }

func (NPY) Decode(r io.Reader, videoID string) (entity.FeatureSequence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return entity.FeatureSequence{}, fmt.Errorf("npy: read: %w", err)
	}
	nr, err := npyio.NewReader(bytes.NewReader(data))
	if err != nil {
		return entity.FeatureSequence{}, fmt.Errorf("npy: %w", err)
	}
	descr := nr.Header.Descr
	if descr.Fortran {
		return entity.FeatureSequence{}, errors.New("npy: fortran-ordered arrays are not supported")
	}

	var width int
	switch descr.Type {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return entity.FeatureSequence{}, fmt.Errorf("npy: unsupported dtype %q", descr.Type)
	}

	rows, cols, err := npyDims(descr.Shape)
	if err != nil {
		return entity.FeatureSequence{}, err
	}
	payload, err := npyPayloadSize(data)
	if err != nil {
		return entity.FeatureSequence{}, err
	}
	if rows > maxNPYElements/cols || rows*cols*width > payload {
		return entity.FeatureSequence{}, fmt.Errorf("npy: shape %v does not fit the %d data bytes", descr.Shape, payload)
	}

	values := make([]float64, rows*cols)
	if width == 4 {
		f32 := make([]float32, rows*cols)
		if err := nr.Read(&f32); err != nil {
			return entity.FeatureSequence{}, fmt.Errorf("npy: read data: %w", err)
		}
		for i, v := range f32 {
			values[i] = float64(v)
		}
	} else if err := nr.Read(&values); err != nil {
		return entity.FeatureSequence{}, fmt.Errorf("npy: read data: %w", err)
	}

	seq := entity.FeatureSequence{VideoID: videoID, Rows: make([][]float64, rows)}
	for i := range seq.Rows {
		seq.Rows[i] = values[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return seq, nil
}

// npyDims maps a 1-D or 2-D shape to rows and columns; 1-D arrays are one
// value per row.
func npyDims(shape []int) (int, int, error) {
	var rows, cols int
	switch len(shape) {
	case 1:
		rows, cols = shape[0], 1
	case 2:
		rows, cols = shape[0], shape[1]
	default:
		return 0, 0, fmt.Errorf("npy: want 1-D or 2-D array, got shape %v", shape)
	}
	if rows < 1 || cols < 1 {
		return 0, 0, fmt.Errorf("npy: invalid shape %v", shape)
	}
	return rows, cols, nil
}

// npyPayloadSize returns the number of bytes after the header.
func npyPayloadSize(data []byte) (int, error) {
	const prefix = 8 // magic + version
	if len(data) < prefix+2 {
		return 0, errors.New("npy: truncated header")
	}
	var size int
	switch data[6] {
	case 1:
		size = prefix + 2 + int(binary.LittleEndian.Uint16(data[prefix:]))
	default:
		if len(data) < prefix+4 {
			return 0, errors.New("npy: truncated header")
		}
		size = prefix + 4 + int(binary.LittleEndian.Uint32(data[prefix:]))
	}
	if size > len(data) {
		return 0, errors.New("npy: truncated header")
	}
	return len(data) - size, nil
}

func (NPY) Encode(w io.Writer, f entity.ResampledFeature) error {
	rows, cols := len(f.Rows), f.Dim()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("npy: empty feature for video %s", f.VideoID)
	}
	flat := make([]float64, 0, rows*cols)
	for i, row := range f.Rows {
		if len(row) != cols {
			return fmt.Errorf("npy: row %d has dimension %d, want %d", i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	if err := npyio.Write(w, mat.NewDense(rows, cols, flat)); err != nil {
		return fmt.Errorf("npy: write: %w", err)
	}
	return nil
}
