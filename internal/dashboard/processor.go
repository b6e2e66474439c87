// Package dashboard is the stream-to-visualisation engine: it applies
// telemetry samples to a single DashboardState and turns that state into
// render frames on an independent cadence.
package dashboard

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/pothole.report/internal/config"
	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/telemetry"
)

// Signal identifies one smoothed readout.
type Signal int

const (
	SignalSpeed Signal = iota
	SignalDistance
	SignalAcceleration
	SignalShock
	SignalRoadScore
	numSignals
)

func (s Signal) String() string {
	switch s {
	case SignalSpeed:
		return "speed"
	case SignalDistance:
		return "distance"
	case SignalAcceleration:
		return "acceleration"
	case SignalShock:
		return "shock"
	case SignalRoadScore:
		return "roadScore"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Config tunes the processor. Use DefaultConfig or ConfigFrom.
type Config struct {
	ApproachFactor      float64
	TimeScaledSmoothing bool
	BufferCapacity      int
	Road                RoadConfig
	FlashThreshold      float64
	FlashDuration       time.Duration
	MarkerTTL           time.Duration
	// MaxTickDelta bounds the simulated time of one tick so a stalled
	// render loop does not teleport the vehicles.
	MaxTickDelta time.Duration
}

// DefaultConfig returns the stock dashboard tuning.
func DefaultConfig() Config {
	return Config{
		ApproachFactor: DefaultApproachFactor,
		BufferCapacity: DefaultBufferCapacity,
		Road:           DefaultRoadConfig(),
		FlashThreshold: 120,
		FlashDuration:  600 * time.Millisecond,
		MarkerTTL:      10 * time.Second,
		MaxTickDelta:   250 * time.Millisecond,
	}
}

// ConfigFrom builds a Config from the JSON configuration.
func ConfigFrom(c *config.DashboardConfig) Config {
	cfg := DefaultConfig()
	cfg.ApproachFactor = c.GetApproachFactor()
	cfg.TimeScaledSmoothing = c.GetTimeScaledSmoothing()
	cfg.BufferCapacity = c.GetBufferCapacity()
	cfg.Road = RoadConfig{
		TrackWidth:       c.GetTrackWidth(),
		BrakeDuration:    c.GetBrakeDuration(),
		MinSeparation:    c.GetMinSeparation(),
		SeparationOffset: c.GetSeparationOffset(),
	}
	cfg.FlashThreshold = c.GetFlashThreshold()
	cfg.FlashDuration = c.GetFlashDuration()
	cfg.MarkerTTL = c.GetMarkerTTL()
	return cfg
}

// State is the dashboard state block. It is only ever touched through a
// Processor, under its lock.
type State struct {
	Stats       SessionStats
	Hazard      telemetry.HazardState
	Previous    *telemetry.Sample
	LastDerived telemetry.Derived
	Smoothers   [numSignals]Smoother
	Charts      map[string]*RollingBuffer
	Road        *RoadSimulator
	Markers     []Marker
	Flash       Flash
	Status      Status
	LastTick    time.Time

	nextMarker uint64
	frames     uint64
}

// Outcome reports what OnSample did with a sample.
type Outcome struct {
	Applied   bool
	Derived   telemetry.Derived
	Detection telemetry.Detection
	Flash     bool
}

// Processor owns the dashboard state. OnSample is the arrival path and
// OnTick the render path; each holds the lock only for its own update so
// neither waits on the other for long.
type Processor struct {
	cfg     Config
	metrics *monitoring.Metrics

	mu    sync.Mutex
	state State
}

// NewProcessor returns a processor in the Connecting state. metrics may be nil.
func NewProcessor(cfg Config, metrics *monitoring.Metrics) *Processor {
	if cfg.ApproachFactor <= 0 || cfg.ApproachFactor > 1 {
		cfg.ApproachFactor = DefaultApproachFactor
	}
	if cfg.MaxTickDelta <= 0 {
		cfg.MaxTickDelta = DefaultConfig().MaxTickDelta
	}
	charts := make(map[string]*RollingBuffer, len(ChartNames))
	for _, name := range ChartNames {
		charts[name] = NewRollingBuffer(cfg.BufferCapacity)
	}
	return &Processor{
		cfg:     cfg,
		metrics: metrics,
		state: State{
			Charts: charts,
			Road:   NewRoadSimulator(cfg.Road),
			Status: Status{State: Connecting},
		},
	}
}

// OnPayload parses a raw feed payload and applies it. Missing fields default
// to zero, the timestamp to now and the pothole count to the last known one.
func (p *Processor) OnPayload(payload []byte, now time.Time) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sample, report, err := telemetry.ParseSample(payload, telemetry.Defaults{
		NowMs:        now.UnixMilli(),
		PotholeCount: p.state.Stats.PotholeCount,
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.SamplesSkipped.Inc()
		}
		return Outcome{}, err
	}
	if !report.Empty() {
		monitoring.Debugf("[Dashboard] defaulted fields %v", report.Fields())
		if p.metrics != nil {
			for _, f := range report.Fields() {
				p.metrics.FieldsDefaulted.WithLabelValues(f).Inc()
			}
		}
	}
	return p.apply(sample, now), nil
}

// OnSample applies one parsed sample at local time now.
func (p *Processor) OnSample(sample telemetry.Sample, now time.Time) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(sample, now)
}

func (p *Processor) apply(sample telemetry.Sample, now time.Time) Outcome {
	st := &p.state
	if st.Status.State == Blocked {
		return Outcome{}
	}

	derived := telemetry.Derive(sample, st.Previous)
	det := st.Hazard.Detect(sample, derived, now)
	st.Stats.Observe(sample, derived)

	st.Smoothers[SignalSpeed].SetTarget(sample.Speed)
	st.Smoothers[SignalDistance].SetTarget(sample.Distance)
	st.Smoothers[SignalAcceleration].SetTarget(derived.Acceleration)
	st.Smoothers[SignalShock].SetTarget(derived.Shock)
	st.Smoothers[SignalRoadScore].SetTarget(sample.RoadScore)

	st.Charts[ChartSpeed].Push(sample.Speed)
	st.Charts[ChartDistance].Push(sample.Distance)
	st.Charts[ChartShock].Push(derived.Shock)

	st.Road.Command(sample.Speed)

	out := Outcome{Applied: true, Derived: derived, Detection: det}
	if det.HazardEvent {
		st.nextMarker++
		st.Markers = append(st.Markers, newMarker(st.nextMarker, st.Road.MarkerX(), sample.Severity, now, p.cfg.MarkerTTL))
		st.Road.TriggerBrake(now)
		if derived.Shock >= p.cfg.FlashThreshold {
			st.Flash = Flash{Strength: derived.Shock, Until: now.Add(p.cfg.FlashDuration)}
			out.Flash = true
		}
		monitoring.Debugf("[Dashboard] hazard severity=%d shock=%.2f", sample.Severity, derived.Shock)
	}
	if det.ReactionMs != nil {
		monitoring.Logf("[Dashboard] reaction measured: %.0f ms", *det.ReactionMs)
	}

	prev := sample
	st.Previous = &prev
	st.LastDerived = derived
	if st.Status.State != Live {
		monitoring.Logf("[Dashboard] feed live")
	}
	st.Status = Status{State: Live}

	p.record(out, sample)
	return out
}

func (p *Processor) record(out Outcome, sample telemetry.Sample) {
	m := p.metrics
	if m == nil {
		return
	}
	m.SamplesProcessed.Inc()
	if out.Derived.DtFallback {
		m.DtFallbacks.Inc()
	}
	if out.Detection.HazardEvent {
		m.HazardEvents.Inc()
	}
	if out.Detection.ReactionMs != nil {
		m.ReactionTime.Observe(*out.Detection.ReactionMs)
	}
	m.PeakShock.Set(p.state.Stats.PeakShock)
	m.MaxSeverity.Set(float64(p.state.Stats.MaxSeverity))
	m.PotholeCount.Set(float64(p.state.Stats.PotholeCount))
	m.Connected.Set(1)
}

// Fail moves the dashboard to Blocked. Samples are ignored until Resume.
func (p *Processor) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := "Feed blocked"
	if err != nil {
		msg = fmt.Sprintf("Feed blocked: %v", err)
	}
	p.state.Status = Status{State: Blocked, Message: msg}
	monitoring.Logf("[Dashboard] %s", msg)
	if p.metrics != nil {
		p.metrics.Connected.Set(0)
	}
}

// Resume clears a Blocked status and waits for the next sample.
func (p *Processor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status.State == Blocked {
		p.state.Status = Status{State: Connecting}
	}
}

// Status returns the current connectivity status.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Status
}

// Stats returns a copy of the session stats.
func (p *Processor) Stats() SessionStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Stats
}

// OnTick advances the smoothers and the road scene to now, sweeps expired
// effects and returns the frame to draw.
func (p *Processor) OnTick(now time.Time) Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := &p.state

	var dt time.Duration
	if !st.LastTick.IsZero() {
		dt = now.Sub(st.LastTick)
		if dt < 0 {
			dt = 0
		}
		if dt > p.cfg.MaxTickDelta {
			dt = p.cfg.MaxTickDelta
		}
	}
	st.LastTick = now

	var values [numSignals]float64
	var ready [numSignals]bool
	for i := range st.Smoothers {
		if p.cfg.TimeScaledSmoothing {
			values[i], ready[i] = st.Smoothers[i].StepScaled(p.cfg.ApproachFactor, dt)
		} else {
			values[i], ready[i] = st.Smoothers[i].Step(p.cfg.ApproachFactor)
		}
	}

	st.Road.Advance(now, dt.Seconds())
	st.Markers = sweepMarkers(st.Markers, now)
	if !st.Flash.Active(now) {
		st.Flash = Flash{}
	}

	st.frames++
	if p.metrics != nil {
		p.metrics.FramesRendered.Inc()
	}
	return p.frame(now, values, ready)
}

func (p *Processor) frame(now time.Time, values [numSignals]float64, ready [numSignals]bool) Frame {
	st := &p.state

	f := Frame{
		Seq: st.frames,
		At:  now,
		Status: StatusView{
			State: st.Status.State.String(),
			Text:  st.Status.Text(),
			Color: st.Status.Color(),
		},
		Speed:         integerGauge(values[SignalSpeed], ready[SignalSpeed]),
		Distance:      decimalGauge(values[SignalDistance], ready[SignalDistance]),
		Acceleration:  decimalGauge(values[SignalAcceleration], ready[SignalAcceleration]),
		Shock:         decimalGauge(values[SignalShock], ready[SignalShock]),
		RoadScore:     integerGauge(values[SignalRoadScore], ready[SignalRoadScore]),
		Stats:         st.Stats,
		PeakShockText: fmt2(st.Stats.PeakShock),
		ReactionText:  Placeholder,
		LastText:      Placeholder,
		Charts:        make(map[string][]float64, len(st.Charts)),
		Flash:         st.Flash.Active(now),
	}

	sev := st.Hazard.LastSeverity
	f.Severity = severityView(sev)
	if st.Previous != nil {
		f.ScoreColor = telemetry.ScoreColor(st.Previous.RoadScore)
		f.LastText = "Last: " + time.UnixMilli(st.Previous.Timestamp).Format("15:04:05")
	} else {
		f.ScoreColor = telemetry.ScoreColor(0)
	}
	if r := st.Hazard.LastReactionMs; r != nil {
		f.ReactionText = fmt.Sprintf("%d", int64(math.Round(*r)))
	}

	for name, buf := range st.Charts {
		f.Charts[name] = buf.Values()
	}

	braking := st.Road.Braking(now)
	f.Road = RoadView{
		VehicleKinematics: st.Road.Kinematics(),
		TrackWidth:        st.Road.Config().TrackWidth,
		Braking:           braking,
		FrontGlow:         frontGlow(sev),
		RearGlow:          rearGlow(braking),
	}

	f.Markers = make([]MarkerView, len(st.Markers))
	for i, m := range st.Markers {
		f.Markers[i] = MarkerView{Marker: m, Ring: m.RingVisible(now), Dimmed: m.Dimmed(now)}
	}
	return f
}
