package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical dashboard defaults file.
const DefaultConfigPath = "config/dashboard.defaults.json"

// DashboardConfig is the root configuration for the dashboard. Every field is
// optional; the Get* methods supply the defaults for anything left unset so a
// partial file is always safe.
type DashboardConfig struct {
	// Smoothing
	ApproachFactor      *float64 `json:"approach_factor,omitempty"`
	TimeScaledSmoothing *bool    `json:"time_scaled_smoothing,omitempty"`

	// Charts
	BufferCapacity *int `json:"buffer_capacity,omitempty"`

	// Render loop
	RenderInterval *string `json:"render_interval,omitempty"` // duration string like "16ms"

	// Road scene
	TrackWidth       *float64 `json:"track_width,omitempty"`
	BrakeDuration    *string  `json:"brake_duration,omitempty"`
	MinSeparation    *float64 `json:"min_separation,omitempty"`
	SeparationOffset *float64 `json:"separation_offset,omitempty"`

	// One-shot effects
	FlashThreshold *float64 `json:"flash_threshold,omitempty"`
	FlashDuration  *string  `json:"flash_duration,omitempty"`
	MarkerTTL      *string  `json:"marker_ttl,omitempty"`

	// Transport
	FeedLimit      *int `json:"feed_limit,omitempty"`
	SerialBaudRate *int `json:"serial_baud_rate,omitempty"`
	UDPPort        *int `json:"udp_port,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDashboardConfig returns a DashboardConfig with all fields set to nil.
func EmptyDashboardConfig() *DashboardConfig {
	return &DashboardConfig{}
}

// DefaultDashboardConfig returns a config with every field populated with the
// value its getter would fall back to.
func DefaultDashboardConfig() *DashboardConfig {
	return &DashboardConfig{
		ApproachFactor:      ptrFloat64(0.18),
		TimeScaledSmoothing: ptrBool(false),
		BufferCapacity:      ptrInt(50),
		RenderInterval:      ptrString("16ms"),
		TrackWidth:          ptrFloat64(900),
		BrakeDuration:       ptrString("1400ms"),
		MinSeparation:       ptrFloat64(65),
		SeparationOffset:    ptrFloat64(42),
		FlashThreshold:      ptrFloat64(120),
		FlashDuration:       ptrString("600ms"),
		MarkerTTL:           ptrString("10s"),
		FeedLimit:           ptrInt(50),
		SerialBaudRate:      ptrInt(115200),
		UDPPort:             ptrInt(4210),
	}
}

// LoadDashboardConfig loads a DashboardConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDashboardConfig(path string) (*DashboardConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDashboardConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *DashboardConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadDashboardConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *DashboardConfig) Validate() error {
	if c.ApproachFactor != nil {
		if *c.ApproachFactor <= 0 || *c.ApproachFactor > 1 {
			return fmt.Errorf("approach_factor must be in (0, 1], got %f", *c.ApproachFactor)
		}
	}

	if c.BufferCapacity != nil && *c.BufferCapacity < 2 {
		return fmt.Errorf("buffer_capacity must be at least 2, got %d", *c.BufferCapacity)
	}

	if c.TrackWidth != nil && *c.TrackWidth <= 0 {
		return fmt.Errorf("track_width must be positive, got %f", *c.TrackWidth)
	}

	if c.MinSeparation != nil && *c.MinSeparation < 0 {
		return fmt.Errorf("min_separation must be non-negative, got %f", *c.MinSeparation)
	}

	// a zero offset would never restore separation
	if c.SeparationOffset != nil && *c.SeparationOffset <= 0 {
		return fmt.Errorf("separation_offset must be positive, got %f", *c.SeparationOffset)
	}

	if c.FeedLimit != nil && *c.FeedLimit < 1 {
		return fmt.Errorf("feed_limit must be at least 1, got %d", *c.FeedLimit)
	}

	if c.UDPPort != nil && (*c.UDPPort < 0 || *c.UDPPort > 65535) {
		return fmt.Errorf("udp_port out of range: %d", *c.UDPPort)
	}

	for name, v := range map[string]*string{
		"render_interval": c.RenderInterval,
		"brake_duration":  c.BrakeDuration,
		"flash_duration":  c.FlashDuration,
		"marker_ttl":      c.MarkerTTL,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetApproachFactor returns the per-tick smoothing fraction.
func (c *DashboardConfig) GetApproachFactor() float64 {
	if c.ApproachFactor == nil {
		return 0.18
	}
	return *c.ApproachFactor
}

// GetTimeScaledSmoothing reports whether smoothing is scaled by elapsed time.
func (c *DashboardConfig) GetTimeScaledSmoothing() bool {
	if c.TimeScaledSmoothing == nil {
		return false
	}
	return *c.TimeScaledSmoothing
}

// GetBufferCapacity returns the rolling chart window length.
func (c *DashboardConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil {
		return 50
	}
	return *c.BufferCapacity
}

// GetRenderInterval returns the render tick period.
func (c *DashboardConfig) GetRenderInterval() time.Duration {
	return durationOr(c.RenderInterval, 16*time.Millisecond)
}

// GetTrackWidth returns the visible road width in scene units.
func (c *DashboardConfig) GetTrackWidth() float64 {
	if c.TrackWidth == nil {
		return 900
	}
	return *c.TrackWidth
}

// GetBrakeDuration returns how long the rear vehicle brakes after a hazard.
func (c *DashboardConfig) GetBrakeDuration() time.Duration {
	return durationOr(c.BrakeDuration, 1400*time.Millisecond)
}

// GetMinSeparation returns the anti-overlap distance between the vehicles.
func (c *DashboardConfig) GetMinSeparation() float64 {
	if c.MinSeparation == nil {
		return 65
	}
	return *c.MinSeparation
}

// GetSeparationOffset returns the backward displacement applied on overlap.
func (c *DashboardConfig) GetSeparationOffset() float64 {
	if c.SeparationOffset == nil {
		return 42
	}
	return *c.SeparationOffset
}

// GetFlashThreshold returns the shock level that arms the flash effect.
func (c *DashboardConfig) GetFlashThreshold() float64 {
	if c.FlashThreshold == nil {
		return 120
	}
	return *c.FlashThreshold
}

// GetFlashDuration returns how long the shock flash stays visible.
func (c *DashboardConfig) GetFlashDuration() time.Duration {
	return durationOr(c.FlashDuration, 600*time.Millisecond)
}

// GetMarkerTTL returns how long a hazard marker dot stays on the road.
func (c *DashboardConfig) GetMarkerTTL() time.Duration {
	return durationOr(c.MarkerTTL, 10*time.Second)
}

// GetFeedLimit returns how many recent feed entries a subscriber replays.
func (c *DashboardConfig) GetFeedLimit() int {
	if c.FeedLimit == nil {
		return 50
	}
	return *c.FeedLimit
}

// GetSerialBaudRate returns the firmware serial baud rate.
func (c *DashboardConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return 115200
	}
	return *c.SerialBaudRate
}

// GetUDPPort returns the UDP port telemetry datagrams arrive on.
func (c *DashboardConfig) GetUDPPort() int {
	if c.UDPPort == nil {
		return 4210
	}
	return *c.UDPPort
}
