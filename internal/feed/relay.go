package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/pothole.report/internal/httputil"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// Mode selects where the relay's samples come from.
type Mode string

const (
	ModeHardware Mode = "hardware"
	ModeDemo     Mode = "demo"
)

// DemoInterval is the demo generator cadence.
const DemoInterval = 500 * time.Millisecond

const maxBodyBytes = 64 * 1024

// ErrUnknownMode is returned by SetMode for anything but hardware or demo.
var ErrUnknownMode = errors.New("unknown relay mode")

// demoSeverities weights the demo generator toward smooth road.
var demoSeverities = []int{0, 0, 0, 1, 0, 2, 0, 3}

// Relay accepts controller readings, counts potholes on smooth-to-rough
// edges, stamps each reading and appends it to the feed.
type Relay struct {
	feed  *Feed
	clock timeutil.Clock

	// ingestMu serialises Ingest so records reach the feed in stamp order.
	ingestMu sync.Mutex

	mu           sync.Mutex
	onResume     func()
	mode         Mode
	potholes     uint64
	lastSeverity int
	rng          *rand.Rand
}

// NewRelay returns a relay in hardware mode.
func NewRelay(f *Feed, clock timeutil.Clock) *Relay {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Relay{
		feed:  f,
		clock: clock,
		mode:  ModeHardware,
		rng:   rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// Seed makes the demo generator deterministic.
func (r *Relay) Seed(seed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng = rand.New(rand.NewSource(seed))
}

// OnResume replaces what POST /api/feed/resume does. By default it only
// clears the feed failure; consumers that also need to re-subscribe hook in
// here.
func (r *Relay) OnResume(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResume = fn
}

// Ingest stamps reading and pushes it to the feed.
func (r *Relay) Ingest(reading telemetry.Reading) (telemetry.Record, error) {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	r.mu.Lock()
	event := false
	if reading.Severity > 0 && r.lastSeverity == 0 {
		r.potholes++
		event = true
	}
	r.lastSeverity = reading.Severity
	rec := reading.Stamp(r.potholes, event, r.clock.Now().UnixMilli())
	r.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := r.feed.Push(payload); err != nil {
		return rec, fmt.Errorf("failed to append record: %w", err)
	}
	return rec, nil
}

// Mode returns the current mode.
func (r *Relay) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode switches between hardware and demo input.
func (r *Relay) SetMode(m Mode) error {
	if m != ModeHardware && m != ModeDemo {
		return fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	r.mu.Lock()
	prev := r.mode
	r.mode = m
	r.mu.Unlock()
	if prev != m {
		monitoring.Logf("[Relay] mode %s -> %s", prev, m)
	}
	return nil
}

// PotholeCount returns the number of potholes counted so far.
func (r *Relay) PotholeCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.potholes
}

// DemoReading draws one randomised reading.
func (r *Relay) DemoReading() telemetry.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return telemetry.Reading{
		Distance:  15 + r.rng.Float64()*15,
		Speed:     float64(120 + r.rng.Intn(51)),
		Severity:  demoSeverities[r.rng.Intn(len(demoSeverities))],
		RoadScore: float64(60 + r.rng.Intn(41)),
	}
}

// RunDemo pushes a demo reading every interval while the relay is in demo
// mode, until ctx is done.
func (r *Relay) RunDemo(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DemoInterval
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if r.Mode() != ModeDemo {
				continue
			}
			if _, err := r.Ingest(r.DemoReading()); err != nil {
				monitoring.Logf("[Relay] demo push failed: %v", err)
			}
		}
	}
}

// RegisterRoutes attaches the relay endpoints to mux.
func (r *Relay) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/road-data", r.handleRoadData)
	mux.HandleFunc("/set_mode", r.handleMode)
	mux.HandleFunc("/api/feed", r.handleFeed)
	mux.HandleFunc("/api/feed/resume", r.handleResume)
}

func (r *Relay) handleRoadData(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "failed to read body")
		return
	}

	// a body that is not an object is treated as empty, like the firmware expects
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = map[string]interface{}{}
	}
	if _, err := r.Ingest(telemetry.ReadingFromFields(fields)); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"ok": true})
}

func (r *Relay) handleMode(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]Mode{"mode": r.Mode()})
	case http.MethodPost:
		var body struct {
			Mode Mode `json:"mode"`
		}
		if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		if body.Mode == "" {
			body.Mode = ModeHardware
		}
		if err := r.SetMode(body.Mode); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]bool{"ok": true})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (r *Relay) handleFeed(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	n := r.feed.Limit()
	if s := req.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		n = v
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"stats":   r.feed.Stats(),
		"entries": r.feed.Recent(n),
	})
}

func (r *Relay) handleResume(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	r.mu.Lock()
	fn := r.onResume
	r.mu.Unlock()
	if fn != nil {
		fn()
	} else {
		r.feed.Resume()
	}
	httputil.WriteJSONOK(w, map[string]bool{"ok": true})
}
