package dashboard

import (
	"errors"
	"sync"

	"github.com/banshee-data/pothole.report/internal/feed"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// Source is the inbound transport as the dashboard sees it.
type Source interface {
	Subscribe(limit int, onAdded func(feed.Entry), onError func(error)) (cancel func())
	Resume()
}

// Binding keeps a Processor subscribed to a Source.
type Binding struct {
	src   Source
	p     *Processor
	clock timeutil.Clock
	limit int

	mu     sync.Mutex
	cancel func()
	// lastKey is the newest entry handed to the processor. Feed keys are
	// time-ordered, so a re-subscription skips everything at or before it.
	lastKey string
}

// Bind subscribes p to the newest limit entries of src and everything after.
func Bind(src Source, p *Processor, limit int, clock timeutil.Clock) *Binding {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	b := &Binding{src: src, p: p, clock: clock, limit: limit}
	b.subscribe()
	return b
}

func (b *Binding) subscribe() {
	cancel := b.src.Subscribe(b.limit, b.onEntry, b.p.Fail)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

func (b *Binding) onEntry(e feed.Entry) {
	b.mu.Lock()
	if b.lastKey != "" && e.Key <= b.lastKey {
		b.mu.Unlock()
		return
	}
	b.lastKey = e.Key
	b.mu.Unlock()

	if _, err := b.p.OnPayload(e.Payload, b.clock.Now()); err != nil {
		if errors.Is(err, telemetry.ErrNotTelemetry) {
			monitoring.Debugf("[Dashboard] skipping entry %s: %v", e.Key, err)
			return
		}
		monitoring.Logf("[Dashboard] entry %s: %v", e.Key, err)
	}
}

// Resume clears a transport failure on both ends and subscribes again.
// Entries the processor has already seen are not applied a second time.
func (b *Binding) Resume() {
	b.src.Resume()
	b.p.Resume()
	b.mu.Lock()
	old := b.cancel
	b.mu.Unlock()
	if old != nil {
		old()
	}
	b.subscribe()
}

// Close ends the subscription.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}
