package usecase

import (
	"fmt"
	"sort"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

type PartitionMode string

const (
	PartitionThreeWay PartitionMode = "three_way"
	PartitionTwoWay   PartitionMode = "two_way"
)

// Group is the unit of assignment: a source video and everything derived
// from it.
type Group struct {
	Key      string
	Duration float64
}

type PartitionResult struct {
	Assignment entity.SplitAssignment
	Durations  map[entity.Subset]float64
	Counts     map[entity.Subset]int
	Total      float64
}

// Fraction is the share of total duration assigned to subset.
func (r *PartitionResult) Fraction(subset entity.Subset) float64 {
	if r.Total == 0 {
		return 0
	}
	return r.Durations[subset] / r.Total
}

// GroupRecords sums durations per group key. Records without segments are
// left out so they do not distort the balancing totals.
func GroupRecords(records []entity.VideoRecord, key func(id string) string) []Group {
	sums := make(map[string]float64)
	for _, r := range records {
		if !r.HasSegments() {
			continue
		}
		sums[key(r.ID)] += r.DurationSeconds
	}
	groups := make([]Group, 0, len(sums))
	for _, k := range sortedKeys(sums) {
		groups = append(groups, Group{Key: k, Duration: sums[k]})
	}
	return groups
}

// Partition assigns every group to exactly one subset. Groups are taken
// largest first; each goes to the first subset in the preference order
// (training, testing, then validation as the unconditional fallback) whose
// duration target still has room for the whole group and whose share of
// assigned groups is below its ratio.
func Partition(groups []Group, trainRatio float64, mode PartitionMode) (*PartitionResult, error) {
	if trainRatio <= 0 || trainRatio >= 1 {
		return nil, entity.NewConfigurationError(fmt.Errorf("train ratio must be in (0,1), got %v", trainRatio))
	}

	var (
		order  []entity.Subset
		ratios map[entity.Subset]float64
	)
	switch mode {
	case PartitionThreeWay:
		rest := (1 - trainRatio) / 2
		order = []entity.Subset{entity.SubsetTraining, entity.SubsetTesting, entity.SubsetValidation}
		ratios = map[entity.Subset]float64{
			entity.SubsetTraining:   trainRatio,
			entity.SubsetTesting:    rest,
			entity.SubsetValidation: rest,
		}
	case PartitionTwoWay:
		order = []entity.Subset{entity.SubsetTraining, entity.SubsetValidation}
		ratios = map[entity.Subset]float64{
			entity.SubsetTraining:   trainRatio,
			entity.SubsetValidation: 1 - trainRatio,
		}
	default:
		return nil, entity.NewConfigurationError(fmt.Errorf("unknown partition mode %q", mode))
	}

	sorted := append([]Group(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Duration != sorted[j].Duration {
			return sorted[i].Duration > sorted[j].Duration
		}
		return sorted[i].Key < sorted[j].Key
	})

	res := &PartitionResult{
		Assignment: make(entity.SplitAssignment, len(sorted)),
		Durations:  make(map[entity.Subset]float64, len(order)),
		Counts:     make(map[entity.Subset]int, len(order)),
	}
	for _, g := range sorted {
		res.Total += g.Duration
	}
	// absorbs rounding in total*ratio so exact fits are accepted
	slack := res.Total * 1e-12

	fallback := order[len(order)-1]
	assigned := 0
	for _, g := range sorted {
		chosen := fallback
		for _, s := range order[:len(order)-1] {
			target := res.Total * ratios[s]
			fits := res.Durations[s]+g.Duration <= target+slack
			share := float64(res.Counts[s]) / float64(assigned+1)
			if fits && share < ratios[s] {
				chosen = s
				break
			}
		}
		res.Assignment[g.Key] = chosen
		res.Durations[chosen] += g.Duration
		res.Counts[chosen]++
		assigned++
	}
	return res, nil
}
