package feedback

import (
	"fmt"
	"time"
)

// Weight bounds. Boosts multiply ranking scores, so they stay close to 1
// to avoid feedback loops drowning the retrieval signal.
const (
	MinBoost = 1.0
	MaxBoost = 1.5
)

// Weights is an immutable snapshot of adaptive ranking boosts keyed by
// (intent, field). Published by the aggregator, read by the ranker.
type Weights struct {
	Generated time.Time          `json:"generated"`
	Events    int                `json:"events"`
	Boosts    map[string]float64 `json:"boosts"`
}

// weightKey joins intent and field into the snapshot map key.
func weightKey(intent, field string) string {
	return fmt.Sprintf("%s|%s", intent, field)
}

// Boost returns the multiplier for an (intent, field) pair; 1.0 when the
// pair has no feedback evidence.
func (w *Weights) Boost(intent, field string) float64 {
	if w == nil || w.Boosts == nil {
		return MinBoost
	}
	if b, ok := w.Boosts[weightKey(intent, field)]; ok {
		return b
	}
	return MinBoost
}

// Source exposes the latest weights snapshot. The ranker depends on this
// one-way accessor, never on the store itself.
type Source interface {
	Weights() *Weights
}

// StaticWeights adapts a fixed snapshot to Source, for tests and for
// running without a feedback store.
type StaticWeights struct {
	W *Weights
}

func (s StaticWeights) Weights() *Weights { return s.W }
