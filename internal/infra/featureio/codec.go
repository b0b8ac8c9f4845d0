package featureio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/childlens/bmnprep/internal/domain/port"
)

// ForFormat returns the codec for an output format name ("csv" or "npy").
func ForFormat(format string) (port.FeatureCodec, error) {
	switch strings.ToLower(format) {
	case "csv":
		return CSV{}, nil
	case "npy":
		return NPY{}, nil
	}
	return nil, fmt.Errorf("unknown feature format %q", format)
}

// ForPath picks a decoder from a file's extension.
func ForPath(path string) (port.FeatureCodec, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSV{}, true
	case ".npy":
		return NPY{}, true
	}
	return nil, false
}
