package rank

import (
	"fmt"
	"sort"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// Explanation modes. Basic keeps the strongest factors; enhanced emits
// the full factor vector plus per-source retrieval provenance.
const (
	ModeBasic    = "basic"
	ModeEnhanced = "enhanced"
)

// basicFactorLimit caps the factor list in basic mode.
const basicFactorLimit = 3

// SourceDetail is the per-retrieval-source provenance of one item.
type SourceDetail struct {
	Source string  `json:"source"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score,omitempty"`
}

// Explanation describes why one item landed at its rank.
type Explanation struct {
	ID        string         `json:"id"`
	FilePath  string         `json:"file_path"`
	Rank      int            `json:"rank"`
	Relevance float64        `json:"relevance"`
	Factors   []Factor       `json:"factors"`
	Sources   []SourceDetail `json:"sources,omitempty"`
	Summary   string         `json:"summary"`
}

// Explain builds an explanation for a ranked item. Unknown modes fall
// back to basic.
func Explain(item *Ranked, mode string) Explanation {
	exp := Explanation{
		ID:        item.ID,
		FilePath:  item.FilePath,
		Rank:      item.Rank,
		Relevance: item.Relevance,
		Factors:   append([]Factor(nil), item.Factors...),
	}

	if mode != ModeEnhanced {
		exp.Factors = topFactors(exp.Factors, basicFactorLimit)
	} else {
		exp.Sources = sourceDetails(item.Item)
	}
	exp.Summary = summarize(exp.Factors)
	return exp
}

// ExplainAll explains every item in a ranked page.
func ExplainAll(items []*Ranked, mode string) []Explanation {
	out := make([]Explanation, len(items))
	for i, item := range items {
		out[i] = Explain(item, mode)
	}
	return out
}

// topFactors keeps the fusion base plus the strongest multipliers,
// ordered by how far each moves the score from neutral.
func topFactors(factors []Factor, limit int) []Factor {
	if len(factors) <= limit {
		return factors
	}
	rest := append([]Factor(nil), factors[1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return deviation(rest[i]) > deviation(rest[j])
	})
	kept := append(factors[:1:1], rest[:limit-1]...)
	return kept
}

func deviation(f Factor) float64 {
	d := f.Contribution - 1.0
	if d < 0 {
		return -d
	}
	return d
}

func sourceDetails(item *search.Item) []SourceDetail {
	var out []SourceDetail
	if item.BM25Rank > 0 {
		out = append(out, SourceDetail{Source: search.SourceBM25, Rank: item.BM25Rank, Score: item.BM25Score})
	}
	if item.VectorRank > 0 {
		out = append(out, SourceDetail{Source: search.SourceVector, Rank: item.VectorRank, Score: item.VectorScore})
	}
	if item.SemanticRank > 0 {
		out = append(out, SourceDetail{Source: search.SourceSemantic, Rank: item.SemanticRank, Score: item.RerankerScore})
	}
	return out
}

// summarize renders a one-line human summary of the leading factors.
func summarize(factors []Factor) string {
	if len(factors) == 0 {
		return "no ranking signal recorded"
	}
	s := fmt.Sprintf("base %s score %.3f", orUnknown(factors[0].Detail), factors[0].Contribution)
	for _, f := range factors[1:] {
		s += fmt.Sprintf(", %s x%.2f", f.Name, f.Contribution)
	}
	return s
}

func orUnknown(detail string) string {
	if detail == "" {
		return "fusion"
	}
	return detail
}
