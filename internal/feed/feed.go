// Package feed is the in-process telemetry feed: an ordered, keyed event
// collection bounded to the most recent entries, plus the HTTP relay that
// stamps controller readings onto it.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// DefaultLimit is how many entries the feed retains and replays.
const DefaultLimit = 50

// liveQueue is the per-subscriber headroom for live entries beyond the replay.
const liveQueue = 256

var (
	// ErrInvalidPayload is returned by Push for payloads that are not JSON.
	ErrInvalidPayload = errors.New("feed payload is not valid JSON")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("feed closed")
)

// Entry is one appended payload. Keys are time-ordered UUIDv7 strings, so
// sorting by key is sorting by append order.
type Entry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	Received time.Time       `json:"received"`
}

// Stats is a point-in-time view of the feed counters.
type Stats struct {
	Entries     int    `json:"entries"`
	Appended    uint64 `json:"appended"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
	Failed      bool   `json:"failed"`
	Failure     string `json:"failure,omitempty"`
}

// Feed keeps the last N entries and fans new ones out to subscribers. Each
// subscriber is served by its own goroutine so a slow consumer never stalls
// Push; entries that do not fit its queue are dropped and counted.
type Feed struct {
	limit   int
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	mu      sync.Mutex
	entries []Entry
	subs    map[uint64]*subscription
	nextSub uint64
	failure error
	closed  bool

	appended atomic.Uint64
	dropped  atomic.Uint64
}

// New returns an empty feed retaining limit entries (DefaultLimit when <= 0).
func New(limit int, clock timeutil.Clock) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Feed{
		limit: limit,
		clock: clock,
		subs:  make(map[uint64]*subscription),
	}
}

// SetMetrics attaches Prometheus instruments. Call before use.
func (f *Feed) SetMetrics(m *monitoring.Metrics) {
	f.metrics = m
}

// Limit returns the retention bound.
func (f *Feed) Limit() int { return f.limit }

// Push appends payload and delivers it to every live subscriber.
func (f *Feed) Push(payload []byte) (Entry, error) {
	if !json.Valid(payload) {
		return Entry{}, ErrInvalidPayload
	}
	data := append(json.RawMessage(nil), payload...)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return Entry{}, ErrClosed
	}

	// keys and receive times are assigned in append order
	key, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate entry key: %w", err)
	}
	e := Entry{
		Key:      key.String(),
		Payload:  data,
		Received: f.clock.Now(),
	}

	f.entries = append(f.entries, e)
	if over := len(f.entries) - f.limit; over > 0 {
		copy(f.entries, f.entries[over:])
		f.entries = f.entries[:f.limit]
	}
	f.appended.Add(1)
	if f.metrics != nil {
		f.metrics.FeedEntries.Inc()
	}

	for _, s := range f.subs {
		select {
		case s.queue <- e:
		default:
			n := f.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				monitoring.Logf("[Feed] subscriber %d queue full, %d entries dropped so far", s.id, n)
			}
		}
	}
	return e, nil
}

// Recent returns up to n of the newest entries, oldest first.
func (f *Feed) Recent(n int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recentLocked(n)
}

func (f *Feed) recentLocked(n int) []Entry {
	if n <= 0 || n > len(f.entries) {
		n = len(f.entries)
	}
	out := make([]Entry, n)
	copy(out, f.entries[len(f.entries)-n:])
	return out
}

// Subscribe replays the newest limit entries (all retained ones when limit
// <= 0) to onAdded and then streams every later entry, in order. onError receives a transport failure, after
// which the subscription ends; subscribing to a failed feed reports the
// failure straight away. The returned cancel func is idempotent.
func (f *Feed) Subscribe(limit int, onAdded func(Entry), onError func(error)) (cancel func()) {
	f.mu.Lock()
	if f.failure != nil || f.closed {
		err := f.failure
		if err == nil {
			err = ErrClosed
		}
		f.mu.Unlock()
		if onError != nil {
			go onError(err)
		}
		return func() {}
	}

	replay := f.recentLocked(limit)
	f.nextSub++
	s := &subscription{
		id:      f.nextSub,
		queue:   make(chan Entry, len(replay)+liveQueue),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
		onAdded: onAdded,
		onError: onError,
	}
	for _, e := range replay {
		s.queue <- e
	}
	f.subs[s.id] = s
	f.mu.Unlock()

	go s.run()
	monitoring.Debugf("[Feed] subscriber %d attached, replaying %d entries", s.id, len(replay))

	return func() {
		f.mu.Lock()
		delete(f.subs, s.id)
		f.mu.Unlock()
		s.stop()
	}
}

// Fail marks the feed failed and ends every subscription with err.
func (f *Feed) Fail(err error) {
	if err == nil {
		err = errors.New("unknown feed failure")
	}
	f.mu.Lock()
	f.failure = err
	subs := f.subs
	f.subs = make(map[uint64]*subscription)
	f.mu.Unlock()

	monitoring.Logf("[Feed] failed: %v (%d subscriber(s) notified)", err, len(subs))
	for _, s := range subs {
		select {
		case s.errs <- err:
		default:
		}
	}
}

// Resume clears a failure so new subscriptions are accepted.
func (f *Feed) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		monitoring.Logf("[Feed] resumed after: %v", f.failure)
	}
	f.failure = nil
}

// Failure returns the current failure, nil when healthy.
func (f *Feed) Failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

// Close ends every subscription. Push fails afterwards.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	subs := f.subs
	f.subs = make(map[uint64]*subscription)
	f.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

// Stats returns the current counters.
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := Stats{
		Entries:     len(f.entries),
		Appended:    f.appended.Load(),
		Subscribers: len(f.subs),
		Dropped:     f.dropped.Load(),
		Failed:      f.failure != nil,
	}
	if f.failure != nil {
		st.Failure = f.failure.Error()
	}
	return st
}

type subscription struct {
	id      uint64
	queue   chan Entry
	errs    chan error
	done    chan struct{}
	once    sync.Once
	onAdded func(Entry)
	onError func(error)
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) deliver(e Entry) {
	if s.onAdded != nil {
		s.onAdded(e)
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.deliver(e)
		case err := <-s.errs:
			// entries accepted before the failure still arrive first
			s.drain()
			if s.onError != nil {
				s.onError(err)
			}
			s.stop()
			return
		}
	}
}

func (s *subscription) drain() {
	for {
		select {
		case e := <-s.queue:
			s.deliver(e)
		default:
			return
		}
	}
}
