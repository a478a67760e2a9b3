// Package broadcast watches a live snapshot source and pushes every new
// snapshot to any number of subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"simsweep/internal/history"
)

// Frame types pushed to subscribers.
const (
	EventMetricsUpdate     = "metrics_update"
	EventHistoryData       = "history_data"
	EventSimulationStarted = "simulation_started"
	EventSimulationStopped = "simulation_stopped"
	EventSweepStarted      = "sweep_started"
)

const (
	DefaultInterval     = time.Second
	DefaultHistorySize  = 1000
	DefaultHistoryLimit = 100
	DefaultBufferSize   = 16
)

// Frame is the envelope of every pushed message.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EncodeFrame serialises a frame.
func EncodeFrame(typ string, data any) ([]byte, error) {
	return json.Marshal(Frame{Type: typ, Data: data})
}

// Options tune a Broadcaster. Zero values select the defaults.
type Options struct {
	Interval    time.Duration
	HistorySize int
	BufferSize  int
}

// Status summarises the broadcaster for pull clients.
type Status struct {
	Status       string     `json:"status"`
	MetricsFile  string     `json:"metrics_file"`
	FileExists   bool       `json:"file_exists"`
	LastUpdate   *time.Time `json:"last_update"`
	HistoryCount int        `json:"history_count"`
	Subscribers  int        `json:"subscribers"`
}

// Broadcaster polls a Source and fans new snapshots out to subscribers.
type Broadcaster struct {
	src      Source
	log      *slog.Logger
	interval time.Duration
	bufSize  int
	hist     *history.Ring[Snapshot]
	now      func() time.Time

	mu          sync.Mutex
	subs        map[string]*Subscription
	lastMod     time.Time
	lastUpdate  time.Time
	latestFrame []byte
	observers   []func(Snapshot)
	closed      bool
}

// New creates a Broadcaster over src.
func New(src Source, log *slog.Logger, opts Options) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		src:      src,
		log:      log,
		interval: opts.Interval,
		bufSize:  opts.BufferSize,
		hist:     history.New[Snapshot](opts.HistorySize),
		now:      time.Now,
		subs:     make(map[string]*Subscription),
	}
}

// OnSnapshot registers fn to be called from the polling goroutine with every
// new snapshot, before subscribers are notified.
func (b *Broadcaster) OnSnapshot(fn func(Snapshot)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Run polls until ctx is cancelled, then closes every subscription.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("broadcaster started", "source", b.src.Name(), "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer b.close()

	_ = b.Poll()
	for {
		select {
		case <-ticker.C:
			_ = b.Poll()
		case <-ctx.Done():
			b.log.Info("broadcaster stopping")
			return nil
		}
	}
}

// Poll checks the source once and publishes a snapshot if it is newer than
// the last one observed. A snapshot that fails to load is skipped until the
// source changes again; the previous snapshot remains the latest.
func (b *Broadcaster) Poll() error {
	mod, exists, err := b.src.Stat()
	if err != nil {
		b.log.Warn("snapshot source unavailable", "source", b.src.Name(), "err", err)
		return err
	}
	if !exists {
		return nil
	}
	b.mu.Lock()
	fresh := mod.After(b.lastMod)
	if fresh {
		b.lastMod = mod
	}
	b.mu.Unlock()
	if !fresh {
		return nil
	}

	snap, err := b.src.Load()
	if err != nil {
		loadErrorsCounter.Inc()
		b.log.Warn("snapshot unreadable", "source", b.src.Name(), "err", err)
		return err
	}
	return b.push(snap)
}

func (b *Broadcaster) push(snap Snapshot) error {
	frame, err := EncodeFrame(EventMetricsUpdate, snap)
	if err != nil {
		return err
	}
	b.hist.Append(snap)

	b.mu.Lock()
	observers := append([]func(Snapshot){}, b.observers...)
	b.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdate = b.now()
	b.latestFrame = frame
	for _, s := range b.subs {
		s.offer(frame)
	}
	updatesCounter.Inc()
	b.log.Debug("snapshot pushed", "subscribers", len(b.subs), "simulation_time_ns", snap.SimulationTimeNS)
	return nil
}

// Publish pushes a control event to every subscriber. It is not recorded as
// the latest snapshot.
func (b *Broadcaster) Publish(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.offer(frame)
	}
	b.log.Debug("event published", "event", event, "subscribers", len(b.subs))
	return nil
}

// Subscribe registers a subscriber. The latest snapshot, or the default
// snapshot, is queued before any later push.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{id: uuid.NewString(), ch: make(chan []byte, b.bufSize), b: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.done = true
		return s
	}
	frame := b.latestFrame
	if frame == nil {
		frame, _ = EncodeFrame(EventMetricsUpdate, DefaultSnapshot(b.now()))
	}
	s.ch <- frame
	b.subs[s.id] = s
	subscribersGauge.Inc()
	return s
}

func (b *Broadcaster) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	delete(b.subs, s.id)
	close(s.ch)
	subscribersGauge.Dec()
}

func (b *Broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		s.done = true
		close(s.ch)
		delete(b.subs, id)
		subscribersGauge.Dec()
	}
}

// Latest returns the newest snapshot, or the default snapshot.
func (b *Broadcaster) Latest() Snapshot {
	if e, ok := b.hist.LatestEntry(); ok {
		return e.Value
	}
	return DefaultSnapshot(b.now())
}

// History returns up to limit snapshots, oldest first. limit <= 0 selects
// DefaultHistoryLimit. An empty history yields the default snapshot alone.
func (b *Broadcaster) History(limit int) []Snapshot {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out := b.hist.Values(limit)
	if len(out) == 0 {
		return []Snapshot{DefaultSnapshot(b.now())}
	}
	return out
}

func (b *Broadcaster) Status() Status {
	_, exists, _ := b.src.Stat()
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Status:       "running",
		MetricsFile:  b.src.Name(),
		FileExists:   exists,
		HistoryCount: b.hist.Len(),
		Subscribers:  len(b.subs),
	}
	if !b.lastUpdate.IsZero() {
		t := b.lastUpdate
		st.LastUpdate = &t
	}
	return st
}

// Subscription receives encoded frames.
type Subscription struct {
	id   string
	ch   chan []byte
	b    *Broadcaster
	done bool
}

func (s *Subscription) ID() string { return s.id }

// C delivers frames. It is closed when the subscription or the broadcaster
// ends.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.b.unsubscribe(s) }

// offer queues a frame without blocking; when the buffer is full the oldest
// pending frame is discarded. Callers hold the broadcaster lock.
func (s *Subscription) offer(frame []byte) {
	for {
		select {
		case s.ch <- frame:
			return
		default:
		}
		select {
		case <-s.ch:
			droppedFramesCounter.Inc()
		default:
		}
	}
}
