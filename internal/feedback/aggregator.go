package feedback

import "time"

// Aggregation tuning. The EMA smooths across aggregator runs so a burst
// of clicks shifts weights gradually.
const (
	// emaDecay is the weight of the previous snapshot in the EMA.
	emaDecay = 0.7

	// boostSpan scales the EMA share onto the boost range above MinBoost.
	boostSpan = MaxBoost - MinBoost

	// outcomeWeight counts a positive outcome as this many clicks.
	outcomeWeight = 2.0
)

// publish recomputes the snapshot from the in-memory window and stores
// it copy-on-write. Caller holds mu.
func (s *Store) publish() *Weights {
	prev := s.weights.Load()
	next := &Weights{
		Generated: s.now().UTC(),
		Events:    len(s.tail),
		Boosts:    make(map[string]float64),
	}

	// Raw evidence per (intent, field): clicks plus outcome-weighted
	// clicks. Outcomes carry no fields, so each outcome is attributed to
	// the fields clicked under the same query id.
	evidence := make(map[string]float64)
	maxPerIntent := make(map[string]float64)
	clicksByQuery := make(map[string][]Event)

	for _, e := range s.tail {
		if e.Kind == KindClick && e.Intent != "" {
			clicksByQuery[e.QueryID] = append(clicksByQuery[e.QueryID], e)
			for _, f := range e.Fields {
				evidence[weightKey(e.Intent, f)]++
			}
		}
	}
	for _, e := range s.tail {
		if e.Kind != KindOutcome || e.Outcome != OutcomeSuccess {
			continue
		}
		for _, click := range clicksByQuery[e.QueryID] {
			for _, f := range click.Fields {
				evidence[weightKey(click.Intent, f)] += outcomeWeight
			}
		}
	}

	for key, v := range evidence {
		intent := intentOf(key)
		if v > maxPerIntent[intent] {
			maxPerIntent[intent] = v
		}
	}

	// EMA over the per-intent-normalized share, mapped onto the boost
	// range. Keys present in the previous snapshot decay toward zero
	// when evidence disappears.
	shares := make(map[string]float64, len(evidence))
	for key, v := range evidence {
		if max := maxPerIntent[intentOf(key)]; max > 0 {
			shares[key] = v / max
		}
	}
	for key := range prev.Boosts {
		if _, ok := shares[key]; !ok {
			shares[key] = 0
		}
	}

	for key, share := range shares {
		prevShare := 0.0
		if b, ok := prev.Boosts[key]; ok {
			prevShare = (b - MinBoost) / boostSpan
		}
		ema := emaDecay*prevShare + (1-emaDecay)*share
		boost := MinBoost + boostSpan*ema
		if boost > MaxBoost {
			boost = MaxBoost
		}
		// Boosts that have decayed to noise are dropped from the map.
		if boost > MinBoost+1e-4 {
			next.Boosts[key] = boost
		}
	}

	s.weights.Store(next)
	return next
}

func intentOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}

// WindowSize reports how many events are currently in the window.
func (s *Store) WindowSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tail)
}

// Stats summarizes the store for the service-info surface.
type Stats struct {
	WindowEvents int       `json:"window_events"`
	Boosts       int       `json:"boosts"`
	Generated    time.Time `json:"generated"`
}

// Snapshot returns summary statistics.
func (s *Store) Snapshot() Stats {
	w := s.weights.Load()
	return Stats{
		WindowEvents: s.WindowSize(),
		Boosts:       len(w.Boosts),
		Generated:    w.Generated,
	}
}
