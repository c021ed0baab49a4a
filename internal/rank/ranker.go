// Package rank re-scores retrieval results using intent, caller context,
// adaptive feedback weights, and freshness. Ranking is deterministic for
// a given weights snapshot; every factor is recorded for the explainer.
package rank

import (
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/feedback"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// DefaultFreshnessHalfLife halves the freshness multiplier contribution.
const DefaultFreshnessHalfLife = 90 * 24 * time.Hour

// Factor names, shared with the explainer output.
const (
	FactorFusion    = "fusion"
	FactorIntent    = "intent_boost"
	FactorSameRepo  = "same_repository"
	FactorSameDir   = "same_directory"
	FactorImport    = "import_neighbor"
	FactorAdaptive  = "adaptive_weight"
	FactorFreshness = "freshness"
)

// Context is the caller-supplied ranking context.
type Context struct {
	Intent        query.Intent
	Repository    string
	CurrentFile   string
	WorkspaceRoot string
	// Imports are the import paths of the caller's current file, used
	// for import-neighbor boosts.
	Imports []string
}

// Factor is one scoring contribution. Contribution is the multiplier
// applied on top of the fused base score.
type Factor struct {
	Name         string  `json:"factor"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// Ranked pairs an item with its recorded factors.
type Ranked struct {
	*search.Item
	Factors []Factor `json:"-"`
}

// intentFieldBoosts maps an intent to the index fields it favors.
// Multipliers apply when the field matched (highlighted) or is present.
var intentFieldBoosts = map[query.Intent]map[string]float64{
	query.IntentImplement:  {"content": 1.15, "function_name": 1.10, "signature": 1.05},
	query.IntentDebug:      {"called_functions": 1.15, "content": 1.10},
	query.IntentUnderstand: {"docstring": 1.20, "signature": 1.10},
	query.IntentRefactor:   {"class_name": 1.10, "imports": 1.10, "signature": 1.05},
	query.IntentTest:       {"function_name": 1.15, "content": 1.05},
	query.IntentDocument:   {"docstring": 1.25, "signature": 1.05},
}

// Ranker applies the factor pipeline.
type Ranker struct {
	weights  feedback.Source
	halfLife time.Duration
	now      func() time.Time
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithFreshnessHalfLife overrides the freshness decay half-life.
func WithFreshnessHalfLife(d time.Duration) RankerOption {
	return func(r *Ranker) {
		if d > 0 {
			r.halfLife = d
		}
	}
}

// NewRanker creates a ranker reading adaptive weights from source. A nil
// source disables adaptive boosts.
func NewRanker(source feedback.Source, opts ...RankerOption) *Ranker {
	if source == nil {
		source = feedback.StaticWeights{}
	}
	r := &Ranker{
		weights:  source,
		halfLife: DefaultFreshnessHalfLife,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank re-scores items in place and returns them ordered by descending
// relevance with a deterministic id tie-break. One weights snapshot is
// read for the whole batch; relevance is re-normalized to [0,1].
func (r *Ranker) Rank(items []*search.Item, rctx Context) []*Ranked {
	snapshot := r.weights.Weights()
	now := r.now()

	ranked := make([]*Ranked, len(items))
	var maxScore float64
	for i, item := range items {
		factors := []Factor{{
			Name:         FactorFusion,
			Contribution: item.Relevance,
			Detail:       fusionDetail(item),
		}}

		score := item.Relevance
		apply := func(name string, mult float64, detail string) {
			if mult == 1.0 {
				return
			}
			score *= mult
			factors = append(factors, Factor{Name: name, Contribution: mult, Detail: detail})
		}

		fields := matchedFields(item)
		if boosts, ok := intentFieldBoosts[rctx.Intent]; ok {
			mult := 1.0
			var boosted []string
			for _, f := range fields {
				if b, ok := boosts[f]; ok && b > 1.0 {
					mult *= b
					boosted = append(boosted, f)
				}
			}
			apply(FactorIntent, mult, strings.Join(boosted, ","))
		}

		if rctx.Repository != "" && item.Repository == rctx.Repository {
			apply(FactorSameRepo, 1.10, item.Repository)
		}
		if rctx.CurrentFile != "" && path.Dir(item.FilePath) == path.Dir(rctx.CurrentFile) {
			apply(FactorSameDir, 1.15, path.Dir(item.FilePath))
		}
		if neighbor, ok := importNeighbor(item, rctx.Imports); ok {
			apply(FactorImport, 1.10, neighbor)
		}

		adaptive := 1.0
		for _, f := range fields {
			adaptive *= snapshot.Boost(string(rctx.Intent), f)
		}
		if adaptive > feedback.MaxBoost {
			adaptive = feedback.MaxBoost
		}
		apply(FactorAdaptive, adaptive, "")

		apply(FactorFreshness, r.freshness(item.LastModified, now), "")

		item.Relevance = score
		if score > maxScore {
			maxScore = score
		}
		ranked[i] = &Ranked{Item: item, Factors: factors}
	}

	if maxScore > 0 {
		for _, rk := range ranked {
			rk.Relevance /= maxScore
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].ID < ranked[j].ID
	})
	for i, rk := range ranked {
		rk.Rank = i + 1
	}
	return ranked
}

// freshness maps document age onto (0.5, 1.0] with exponential decay.
// Unknown timestamps are neutral.
func (r *Ranker) freshness(modified time.Time, now time.Time) float64 {
	if modified.IsZero() {
		return 1.0
	}
	age := now.Sub(modified)
	if age <= 0 {
		return 1.0
	}
	decay := math.Pow(0.5, float64(age)/float64(r.halfLife))
	return 0.5 + 0.5*decay
}

// matchedFields returns the index fields that contributed to the match:
// highlighted fields, falling back to content.
func matchedFields(item *search.Item) []string {
	if len(item.Highlights) == 0 {
		return []string{"content"}
	}
	fields := make([]string, 0, len(item.Highlights))
	for f := range item.Highlights {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// importNeighbor reports whether the item's file or repository appears
// in the caller's import list.
func importNeighbor(item *search.Item, imports []string) (string, bool) {
	if len(imports) == 0 {
		return "", false
	}
	base := strings.TrimSuffix(path.Base(item.FilePath), path.Ext(item.FilePath))
	dir := path.Dir(item.FilePath)
	for _, imp := range imports {
		if imp == "" {
			continue
		}
		if strings.HasSuffix(imp, "/"+base) || path.Base(imp) == path.Base(dir) {
			return imp, true
		}
	}
	return "", false
}

func fusionDetail(item *search.Item) string {
	var parts []string
	if item.BM25Rank > 0 {
		parts = append(parts, "bm25")
	}
	if item.VectorRank > 0 {
		parts = append(parts, "vector")
	}
	if item.SemanticRank > 0 {
		parts = append(parts, "semantic")
	}
	return strings.Join(parts, "+")
}
