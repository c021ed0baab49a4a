package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultAggregateInterval is how often weights are recomputed.
	DefaultAggregateInterval = 5 * time.Minute

	// DefaultWindowDays is the sliding aggregation window.
	DefaultWindowDays = 7

	// writeQueueSize bounds pending acknowledged writes.
	writeQueueSize = 256
)

// writeRequest pairs an event with its acknowledgement channel.
type writeRequest struct {
	event Event
	ack   chan error
}

// Store appends events to one JSONL file per UTC day through a single
// writer goroutine, keeps a sliding in-memory window for aggregation,
// and publishes weight snapshots.
type Store struct {
	dir      string
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	writes  chan writeRequest
	stop    chan struct{}
	stopped chan struct{}
	started bool
	mu      sync.Mutex

	// tail is the in-memory sliding window, owned by the writer goroutine
	// between Start and Stop.
	tail []Event

	weights atomic.Pointer[Weights]

	currentDay  string
	currentFile *os.File
	writer      *bufio.Writer
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithAggregateInterval overrides the aggregation cadence.
func WithAggregateInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWindowDays overrides the sliding window length.
func WithWindowDays(days int) StoreOption {
	return func(s *Store) {
		if days > 0 {
			s.window = time.Duration(days) * 24 * time.Hour
		}
	}
}

// NewStore creates a feedback store rooted at dir. Call Start before
// Record.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("feedback directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback dir: %w", err)
	}
	s := &Store{
		dir:      dir,
		interval: DefaultAggregateInterval,
		window:   time.Duration(DefaultWindowDays) * 24 * time.Hour,
		logger:   slog.Default().With("component", "feedback"),
		now:      time.Now,
		writes:   make(chan writeRequest, writeQueueSize),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.weights.Store(&Weights{Generated: s.now().UTC(), Boosts: map[string]float64{}})
	return s, nil
}

// Start loads the window from existing day files, publishes an initial
// snapshot, and launches the writer goroutine.
func (s *Store) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("feedback store already started")
	}

	events, err := s.loadWindow()
	if err != nil {
		return err
	}
	s.tail = events
	s.publish()

	s.started = true
	go s.run()
	return nil
}

// Stop flushes and closes the current day file. Pending Record calls are
// acknowledged before shutdown completes.
func (s *Store) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped
	return nil
}

// Record persists one event. It returns after the event is written (or
// the context is done), satisfying the acknowledge-before-response rule.
func (s *Store) Record(ctx context.Context, event Event) error {
	if !event.Valid() {
		return fmt.Errorf("invalid feedback event")
	}
	if event.TS.IsZero() {
		event.TS = s.now().UTC()
	}

	req := writeRequest{event: event, ack: make(chan error, 1)}
	select {
	case s.writes <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Weights returns the latest published snapshot.
func (s *Store) Weights() *Weights {
	return s.weights.Load()
}

var _ Source = (*Store)(nil)

// Aggregate recomputes and publishes the weights snapshot immediately.
// The periodic loop calls this; tools may trigger it explicitly.
func (s *Store) Aggregate() *Weights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publish()
}

// run is the writer goroutine: serializes appends, acknowledges writers,
// and aggregates on a timer.
func (s *Store) run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case req := <-s.writes:
			req.ack <- s.append(req.event)
		case <-ticker.C:
			s.mu.Lock()
			s.trimWindow()
			s.publish()
			s.mu.Unlock()
		case <-s.stop:
			// Drain pending writes before closing.
			for {
				select {
				case req := <-s.writes:
					req.ack <- s.append(req.event)
				default:
					s.closeFile()
					return
				}
			}
		}
	}
}

// append writes one JSONL line, rotating the day file on UTC day change.
// A failed write is retried once on a reopened file; persistent failure
// is returned to the caller and logged, but the event still enters the
// in-memory window so aggregation sees it.
func (s *Store) append(event Event) error {
	day := event.TS.UTC().Format("2006-01-02")
	if err := s.ensureFile(day); err != nil {
		s.logger.Error("feedback file unavailable", "error", err)
		s.keep(event)
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feedback event: %w", err)
	}

	if err := s.writeLine(line); err != nil {
		s.logger.Warn("feedback write failed, reopening file", "error", err)
		s.closeFile()
		if err := s.ensureFile(day); err == nil {
			err = s.writeLine(line)
		}
		if err != nil {
			s.logger.Error("feedback write failed after retry", "error", err)
			s.keep(event)
			return err
		}
	}
	s.keep(event)
	return nil
}

func (s *Store) writeLine(line []byte) error {
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.writer.Flush()
}

// keep adds the event to the sliding window.
func (s *Store) keep(event Event) {
	s.mu.Lock()
	s.tail = append(s.tail, event)
	s.mu.Unlock()
}

// trimWindow drops events older than the window. Caller holds mu.
func (s *Store) trimWindow() {
	cutoff := s.now().UTC().Add(-s.window)
	kept := s.tail[:0]
	for _, e := range s.tail {
		if e.TS.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.tail = kept
}

// ensureFile opens or rotates the current day file.
func (s *Store) ensureFile(day string) error {
	if s.currentFile != nil && s.currentDay == day {
		return nil
	}
	s.closeFile()

	path := filepath.Join(s.dir, "feedback-"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback file: %w", err)
	}
	s.currentFile = f
	s.currentDay = day
	s.writer = bufio.NewWriter(f)
	return nil
}

func (s *Store) closeFile() {
	if s.writer != nil {
		_ = s.writer.Flush()
		s.writer = nil
	}
	if s.currentFile != nil {
		_ = s.currentFile.Close()
		s.currentFile = nil
	}
	s.currentDay = ""
}

// loadWindow reads the day files covering the sliding window.
func (s *Store) loadWindow() ([]Event, error) {
	cutoff := s.now().UTC().Add(-s.window)
	var events []Event

	for day := cutoff; !day.After(s.now().UTC()); day = day.Add(24 * time.Hour) {
		path := filepath.Join(s.dir, "feedback-"+day.Format("2006-01-02")+".jsonl")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open feedback file: %w", err)
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e Event
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				// Torn or corrupt lines are skipped, not fatal.
				s.logger.Warn("skipping corrupt feedback line", "file", path)
				continue
			}
			if e.TS.After(cutoff) {
				events = append(events, e)
			}
		}
		err = scanner.Err()
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read feedback file: %w", err)
		}
	}
	return events, nil
}
