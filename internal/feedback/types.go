// Package feedback records search feedback events to JSONL day files and
// aggregates them into ranking weight snapshots. Writes are asynchronous
// but acknowledged; the aggregator publishes snapshots copy-on-write so
// the ranker reads without locks.
package feedback

import "time"

// Kind is the feedback event type.
type Kind string

const (
	KindClick   Kind = "click"
	KindOutcome Kind = "outcome"
	KindRating  Kind = "rating"
)

// Outcome values for KindOutcome events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

// Event is one feedback record as persisted.
type Event struct {
	QueryID string `json:"query_id"`
	Kind    Kind   `json:"kind"`
	// Intent is the query intent the event is attributed to.
	Intent string `json:"intent,omitempty"`
	DocID  string `json:"doc_id,omitempty"`
	Rank   int    `json:"rank,omitempty"`
	// Fields are the matched index fields of the clicked document,
	// driving per-(intent, field) aggregation.
	Fields  []string          `json:"fields,omitempty"`
	Outcome string            `json:"outcome,omitempty"`
	Score   float64           `json:"score,omitempty"`
	Rating  int               `json:"rating,omitempty"`
	Context map[string]string `json:"context,omitempty"`
	TS      time.Time         `json:"ts"`
}

// Valid reports basic event well-formedness.
func (e *Event) Valid() bool {
	if e.QueryID == "" {
		return false
	}
	switch e.Kind {
	case KindClick:
		return e.DocID != ""
	case KindOutcome:
		return e.Outcome != ""
	case KindRating:
		return e.Rating >= 1 && e.Rating <= 5
	}
	return false
}
