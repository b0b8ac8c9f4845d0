package entity

import "fmt"

// Subset is the dataset partition a video belongs to. Values are the names the
// downstream data loader expects.
type Subset string

const (
	SubsetTraining   Subset = "training"
	SubsetValidation Subset = "validation"
	SubsetTesting    Subset = "testing"
)

func ParseSubset(s string) (Subset, error) {
	switch Subset(s) {
	case SubsetTraining, SubsetValidation, SubsetTesting:
		return Subset(s), nil
	}
	return "", fmt.Errorf("unknown subset %q", s)
}

// HasClips reports whether clip and video lists are produced for the subset.
func (s Subset) HasClips() bool {
	return s == SubsetTraining || s == SubsetValidation
}

// SplitAssignment maps a group key (base video id) to its subset.
type SplitAssignment map[string]Subset

// Of resolves the subset for a video or chunk id.
func (a SplitAssignment) Of(id string) (Subset, bool) {
	if s, ok := a[id]; ok {
		return s, true
	}
	s, ok := a[GroupKey(id)]
	return s, ok
}
