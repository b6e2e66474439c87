// Package ingest turns the vehicle controller's outputs (serial console,
// UDP datagrams, packet captures, an upstream websocket) into readings for
// the relay. Every source shares the same line handling so a reading looks
// the same whichever way it arrived.
package ingest

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/telemetry"
)

// Ingester accepts controller readings. *feed.Relay implements it.
type Ingester interface {
	Ingest(telemetry.Reading) (telemetry.Record, error)
}

// Stats counts what a source did with its input.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Skipped  uint64 `json:"skipped"`
	Failed   uint64 `json:"failed"`
}

type counters struct {
	accepted atomic.Uint64
	skipped  atomic.Uint64
	failed   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Accepted: c.accepted.Load(),
		Skipped:  c.skipped.Load(),
		Failed:   c.failed.Load(),
	}
}

// handleLine parses one controller line and forwards it. Lines that are not
// telemetry are counted and dropped.
func handleLine(ing Ingester, c *counters, source, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	r, err := telemetry.ParseLine(line)
	if err != nil {
		c.skipped.Add(1)
		if errors.Is(err, telemetry.ErrNotTelemetry) {
			monitoring.Debugf("[%s] skipping %q", source, line)
		}
		return
	}
	if _, err := ing.Ingest(r); err != nil {
		c.failed.Add(1)
		monitoring.Logf("[%s] ingest failed: %v", source, err)
		return
	}
	c.accepted.Add(1)
}

// handlePayload splits a datagram or message on newlines and handles each
// line. Controllers batch several lines into one packet when they fall
// behind.
func handlePayload(ing Ingester, c *counters, source string, payload []byte) {
	for _, line := range strings.Split(string(payload), "\n") {
		handleLine(ing, c, source, line)
	}
}
