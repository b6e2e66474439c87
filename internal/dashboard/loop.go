package dashboard

import (
	"context"
	"time"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// DefaultRenderInterval is roughly one display refresh.
const DefaultRenderInterval = 16 * time.Millisecond

// Presenter draws frames. Present is called from the render goroutine and
// must not block; slow sinks should drop.
type Presenter interface {
	Present(Frame)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Frame)

// Present calls f(frame).
func (f PresenterFunc) Present(frame Frame) { f(frame) }

// RunRenderLoop ticks p at interval and hands each frame to every presenter
// until ctx is cancelled. Frames are built under the processor lock and
// presented after it is released.
func RunRenderLoop(ctx context.Context, clock timeutil.Clock, interval time.Duration, p *Processor, presenters ...Presenter) {
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	monitoring.Logf("[Render] loop started at %v with %d presenter(s)", interval, len(presenters))
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[Render] loop stopped")
			return
		case now := <-ticker.C():
			frame := p.OnTick(now)
			for _, pr := range presenters {
				pr.Present(frame)
			}
		}
	}
}
