package balance

import (
	"math"
	"sort"

	"timeline-service/internal/scoring"
)

const (
	// DefaultTargetRatio is the post fraction of a balanced feed
	// (60% posts / 40% projects).
	DefaultTargetRatio = 0.6
	// DefaultAdaptBelow is the scarce-type share below which the
	// working ratio is recomputed to what that type can supply.
	DefaultAdaptBelow = 0.3

	cycleLen = 3
)

type Options struct {
	TargetRatio float64
	AdaptBelow  float64
}

func DefaultOptions() Options {
	return Options{TargetRatio: DefaultTargetRatio, AdaptBelow: DefaultAdaptBelow}
}

// Merge interleaves scored posts and projects into a single ranked
// list. Each type is stable-sorted descending by score, then emitted in
// 3-slot cycles (2 posts, 1 project at the default ratio). When one
// type runs out mid-cycle the other fills the slot, so the output
// degrades to a single-type list in score order. Never pads, never
// duplicates, never re-sorts within a type. limit <= 0 means no limit.
func Merge(posts, projects []scoring.ScoredItem, limit int, opts Options) []scoring.ScoredItem {
	if opts.TargetRatio <= 0 || opts.TargetRatio >= 1 {
		opts.TargetRatio = DefaultTargetRatio
	}
	if opts.AdaptBelow <= 0 {
		opts.AdaptBelow = DefaultAdaptBelow
	}

	posts = sortedByScore(posts)
	projects = sortedByScore(projects)

	desired := len(posts) + len(projects)
	if limit > 0 && limit < desired {
		desired = limit
	}
	if desired == 0 {
		return nil
	}

	ratio := adaptRatio(opts, len(posts), len(projects), desired)
	postSlots := int(math.Round(ratio * cycleLen))
	if postSlots > cycleLen {
		postSlots = cycleLen
	}
	if postSlots < 0 {
		postSlots = 0
	}
	// A scarce type that still has items keeps at least one slot per
	// cycle so it is not starved until the other type drains.
	if postSlots == 0 && len(posts) > 0 {
		postSlots = 1
	}
	if postSlots == cycleLen && len(projects) > 0 {
		postSlots = cycleLen - 1
	}
	projectSlots := cycleLen - postSlots

	out := make([]scoring.ScoredItem, 0, desired)
	pi, ji := 0, 0
	for len(out) < desired && (pi < len(posts) || ji < len(projects)) {
		for k := 0; k < postSlots && len(out) < desired; k++ {
			if pi < len(posts) {
				out = append(out, posts[pi])
				pi++
			} else if ji < len(projects) {
				out = append(out, projects[ji])
				ji++
			}
		}
		for k := 0; k < projectSlots && len(out) < desired; k++ {
			if ji < len(projects) {
				out = append(out, projects[ji])
				ji++
			} else if pi < len(posts) {
				out = append(out, posts[pi])
				pi++
			}
		}
	}
	return out
}

// adaptRatio widens the abundant type's share when the scarce type
// cannot supply its target fraction of the page and its actual share
// sits below the adaptation threshold. It never invents items: padding
// is impossible regardless of the ratio chosen.
func adaptRatio(opts Options, nPosts, nProjects, desired int) float64 {
	ratio := opts.TargetRatio
	postShare := float64(nPosts) / float64(desired)
	projectShare := float64(nProjects) / float64(desired)

	if postShare < ratio && postShare < opts.AdaptBelow {
		return postShare
	}
	if projectShare < 1-ratio && projectShare < opts.AdaptBelow {
		return 1 - projectShare
	}
	return ratio
}

func sortedByScore(items []scoring.ScoredItem) []scoring.ScoredItem {
	sorted := make([]scoring.ScoredItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}
