package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), WithAggregateInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func click(queryID, docID, intent string, fields ...string) Event {
	return Event{QueryID: queryID, Kind: KindClick, DocID: docID, Intent: intent, Fields: fields}
}

func TestRecordWritesDayFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, WithAggregateInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	e := click("q1", "doc1", "implement", "content")
	e.TS = ts
	require.NoError(t, s.Record(context.Background(), e))
	require.NoError(t, s.Stop())

	data, err := os.ReadFile(filepath.Join(dir, "feedback-2026-08-24.jsonl"))
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "q1", got.QueryID)
	assert.Equal(t, KindClick, got.Kind)
	assert.Equal(t, []string{"content"}, got.Fields)
}

func TestRecordRejectsInvalidEvents(t *testing.T) {
	s := newTestStore(t)

	tests := []Event{
		{},                                    // no query id
		{QueryID: "q", Kind: KindClick},       // click without doc
		{QueryID: "q", Kind: KindOutcome},     // outcome without value
		{QueryID: "q", Kind: KindRating},      // rating out of range
		{QueryID: "q", Kind: Kind("unknown")}, // unknown kind
	}
	for _, e := range tests {
		assert.Error(t, s.Record(context.Background(), e))
	}

	assert.NoError(t, s.Record(context.Background(),
		Event{QueryID: "q", Kind: KindRating, Rating: 4}))
}

func TestOrderPreservedWithinSession(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, WithAggregateInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Start())

	for i := 0; i < 20; i++ {
		e := click("q1", string(rune('a'+i)), "debug", "content")
		require.NoError(t, s.Record(context.Background(), e))
	}
	require.NoError(t, s.Stop())

	day := time.Now().UTC().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(dir, "feedback-"+day+".jsonl"))
	require.NoError(t, err)

	var prev time.Time
	lines := 0
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Event
		require.NoError(t, dec.Decode(&e))
		assert.False(t, e.TS.Before(prev))
		prev = e.TS
		lines++
	}
	assert.Equal(t, 20, lines)
}

func TestAggregateBoostsClickedFields(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record(context.Background(),
			click("q1", "doc1", "implement", "function_name", "content")))
	}
	w := s.Aggregate()

	assert.Greater(t, w.Boost("implement", "function_name"), MinBoost)
	assert.Equal(t, MinBoost, w.Boost("implement", "docstring"))
	assert.Equal(t, MinBoost, w.Boost("debug", "function_name"))
}

func TestAggregateOutcomeAmplifies(t *testing.T) {
	s := newTestStore(t)

	// Same click volume on both fields, but q1 (content) has a positive
	// outcome attached.
	require.NoError(t, s.Record(context.Background(), click("q1", "d1", "debug", "content")))
	require.NoError(t, s.Record(context.Background(), click("q2", "d2", "debug", "signature")))
	require.NoError(t, s.Record(context.Background(),
		Event{QueryID: "q1", Kind: KindOutcome, Outcome: OutcomeSuccess, Intent: "debug"}))

	w := s.Aggregate()
	assert.Greater(t, w.Boost("debug", "content"), w.Boost("debug", "signature"))
}

func TestAggregateEMAConverges(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Record(context.Background(),
		click("q1", "d1", "test", "content")))

	var prev float64 = MinBoost
	for i := 0; i < 10; i++ {
		w := s.Aggregate()
		b := w.Boost("test", "content")
		assert.GreaterOrEqual(t, b, prev, "boost should be non-decreasing under stable evidence")
		assert.LessOrEqual(t, b, MaxBoost)
		prev = b
	}
	// Converges toward the full-share boost for the only evidence key.
	assert.InDelta(t, MaxBoost, prev, 0.1)
}

func TestStartLoadsExistingWindow(t *testing.T) {
	dir := t.TempDir()

	s1, err := NewStore(dir, WithAggregateInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s1.Start())
	require.NoError(t, s1.Record(context.Background(),
		click("q1", "d1", "implement", "content")))
	require.NoError(t, s1.Stop())

	s2, err := NewStore(dir, WithAggregateInterval(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s2.Start())
	t.Cleanup(func() { _ = s2.Stop() })

	assert.Equal(t, 1, s2.WindowSize())
	w := s2.Aggregate()
	assert.Greater(t, w.Boost("implement", "content"), MinBoost)
}

func TestStaticWeightsSource(t *testing.T) {
	w := &Weights{Boosts: map[string]float64{weightKey("debug", "content"): 1.3}}
	src := StaticWeights{W: w}

	assert.InDelta(t, 1.3, src.Weights().Boost("debug", "content"), 1e-9)
	assert.Equal(t, MinBoost, src.Weights().Boost("debug", "other"))

	var nilW *Weights
	assert.Equal(t, MinBoost, nilW.Boost("a", "b"))
}
