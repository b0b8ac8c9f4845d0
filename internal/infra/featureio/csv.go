package featureio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/domain/port"
)

// CSV reads feature tables with a header row and writes resampled features
// with synthetic f0..f{D-1} column names and four decimals per value.
type CSV struct{}

var _ port.FeatureCodec = CSV{}

func (CSV) Ext() string { return ".csv" }

func (CSV) Decode(r io.Reader, videoID string) (entity.FeatureSequence, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return entity.FeatureSequence{}, errors.New("csv: empty feature file")
		}
		return entity.FeatureSequence{}, fmt.Errorf("csv: read header: %w", err)
	}

	seq := entity.FeatureSequence{VideoID: videoID}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return entity.FeatureSequence{}, fmt.Errorf("csv: read line %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return entity.FeatureSequence{}, fmt.Errorf("csv: line %d column %d: %w", line, j, err)
			}
			row[j] = v
		}
		seq.Rows = append(seq.Rows, row)
	}
	return seq, nil
}

// Encode joins lines with "\n" and omits the trailing newline, matching the
// files the localization loader was built against.
func (CSV) Encode(w io.Writer, f entity.ResampledFeature) error {
	d := f.Dim()
	lines := make([]string, 0, len(f.Rows)+1)

	cols := make([]string, d)
	for i := range cols {
		cols[i] = "f" + strconv.Itoa(i)
	}
	lines = append(lines, strings.Join(cols, ","))

	vals := make([]string, d)
	for i, row := range f.Rows {
		if len(row) != d {
			return fmt.Errorf("csv: row %d has dimension %d, want %d", i, len(row), d)
		}
		for j, v := range row {
			vals[j] = strconv.FormatFloat(v, 'f', 4, 64)
		}
		lines = append(lines, strings.Join(vals, ","))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}
