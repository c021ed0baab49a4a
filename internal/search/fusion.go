package search

import "sort"

// RankedList is one sub-query's ordered result ids with a fusion weight.
type RankedList struct {
	Source string
	Weight float64
	IDs    []string
}

// RRFFusion merges ranked lists using Reciprocal Rank Fusion:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// where rank_i is the 1-indexed position of d in list i. Documents
// missing from a list receive that list's contribution at
// missing_rank = max(list lengths) + 1, so presence in more lists always
// outranks presence in fewer at the same positions.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance; k <= 0 selects the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// fusedScore tracks one document's accumulated evidence.
type fusedScore struct {
	id      string
	score   float64
	best    float64 // highest single-list reciprocal, for tie breaks
	sources []string
	ranks   map[string]int
}

// Fuse merges the lists and returns ids ordered by descending fused
// score. Ties break on the higher best single-list contribution, then id.
// The returned map carries per-source 1-indexed ranks for explanations.
func (f *RRFFusion) Fuse(lists []RankedList) ([]string, map[string]*fusedScore) {
	scores := make(map[string]*fusedScore)

	missingRank := 1
	for _, list := range lists {
		if len(list.IDs) >= missingRank {
			missingRank = len(list.IDs) + 1
		}
	}

	for _, list := range lists {
		for rank, id := range list.IDs {
			fs, ok := scores[id]
			if !ok {
				fs = &fusedScore{id: id, ranks: make(map[string]int, len(lists))}
				scores[id] = fs
			}
			contribution := list.Weight / float64(f.K+rank+1)
			fs.score += contribution
			if contribution > fs.best {
				fs.best = contribution
			}
			fs.sources = append(fs.sources, list.Source)
			fs.ranks[list.Source] = rank + 1
		}
	}

	// Contribution at missing_rank for lists a document did not appear in.
	for _, fs := range scores {
		for _, list := range lists {
			if _, ok := fs.ranks[list.Source]; !ok {
				fs.score += list.Weight / float64(f.K+missingRank)
			}
		}
	}

	ordered := make([]*fusedScore, 0, len(scores))
	for _, fs := range scores {
		ordered = append(ordered, fs)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		if ordered[i].best != ordered[j].best {
			return ordered[i].best > ordered[j].best
		}
		return ordered[i].id < ordered[j].id
	})

	ids := make([]string, len(ordered))
	for i, fs := range ordered {
		ids[i] = fs.id
	}
	return ids, scores
}

// NormalizeScores maps fused scores onto [0,1] by dividing by the max.
func NormalizeScores(scores map[string]*fusedScore) map[string]float64 {
	var max float64
	for _, fs := range scores {
		if fs.score > max {
			max = fs.score
		}
	}
	out := make(map[string]float64, len(scores))
	for id, fs := range scores {
		if max > 0 {
			out[id] = fs.score / max
		}
	}
	return out
}
