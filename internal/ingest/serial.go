package ingest

import (
	"context"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/serialmux"
)

// SerialSource feeds console lines from a serial mux into an Ingester.
type SerialSource struct {
	mux   serialmux.SerialMuxInterface
	ing   Ingester
	id    string
	lines chan string
	c     counters
}

// NewSerialSource subscribes to mux straight away so no line printed after
// it returns is missed.
func NewSerialSource(mux serialmux.SerialMuxInterface, ing Ingester) *SerialSource {
	id, lines := mux.Subscribe()
	return &SerialSource{mux: mux, ing: ing, id: id, lines: lines}
}

// Run consumes lines until ctx is done or the mux closes the subscription.
// The mux's Monitor must be running separately. Run unsubscribes on return.
func (s *SerialSource) Run(ctx context.Context) error {
	defer s.mux.Unsubscribe(s.id)
	monitoring.Logf("[Serial] consuming controller lines")
	lines := s.lines

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				monitoring.Logf("[Serial] line stream closed")
				return nil
			}
			switch serialmux.ClassifyLine(line) {
			case serialmux.LineTelemetry:
				handleLine(s.ing, &s.c, "Serial", line)
			case serialmux.LineStatus:
				monitoring.Debugf("[Serial] controller: %s", line)
			default:
				s.c.skipped.Add(1)
			}
		}
	}
}

// Stats returns the source counters.
func (s *SerialSource) Stats() Stats { return s.c.snapshot() }
