package splatter

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const defaultBaseLifetime = 10.0

// Config holds the engine parameters. Zero values are filled from the
// embedded defaults; invalid values are clamped to a safe range rather than
// rejected.
type Config struct {
	Particles ParticleConfig `yaml:"particles"`
	Canvas    CanvasConfig   `yaml:"canvas"`
	Spawn     SpawnConfig    `yaml:"spawn"`
	Brush     SessionSettings `yaml:"brush"`
	Device    DeviceConfig   `yaml:"device"`
	Stats     StatsConfig    `yaml:"stats"`

	// Sessions optionally pre-configures brushes per session id.
	Sessions map[int32]SessionSettings `yaml:"sessions"`
}

type ParticleConfig struct {
	// Capacity is the fixed slot count of the particle store.
	Capacity int `yaml:"capacity"`

	// FadeStart is the normalized age at which opacity starts easing out.
	FadeStart float32 `yaml:"fade_start"`

	// PaintJitterPixels is the position jitter radius used in paint mode.
	PaintJitterPixels float32 `yaml:"paint_jitter_pixels"`
}

type CanvasConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type SpawnConfig struct {
	// MaxEventsPerDispatch caps a single spawn dispatch to bound device
	// latency. Larger queues are split into sequential dispatches.
	MaxEventsPerDispatch int `yaml:"max_events_per_dispatch"`
}

type DeviceConfig struct {
	// Workers is the goroutine count of the software device. 0 means one
	// per logical CPU.
	Workers int `yaml:"workers"`

	RecoveryBackoffMs   int `yaml:"recovery_backoff_ms"`
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts"`
}

type StatsConfig struct {
	// FrameWindow is the rolling window length for the average frame time.
	FrameWindow int `yaml:"frame_window"`
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// The embedded defaults are part of the build; failing to parse
		// them is a programming error.
		panic(fmt.Sprintf("embedded defaults.yaml invalid: %v", err))
	}
	return cfg.Clamped()
}

// LoadConfig reads a YAML config file over the embedded defaults. A missing
// path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.Clamped(), nil
}

// Clamped returns a copy with every parameter forced into its safe range.
func (c Config) Clamped() Config {
	if c.Particles.Capacity < 1 {
		c.Particles.Capacity = 1
	}
	if c.Particles.FadeStart <= 0 || c.Particles.FadeStart >= 1 {
		c.Particles.FadeStart = 0.6
	}
	if c.Particles.PaintJitterPixels < 0 {
		c.Particles.PaintJitterPixels = 0
	}
	if c.Canvas.Width < 1 {
		c.Canvas.Width = 1
	}
	if c.Canvas.Height < 1 {
		c.Canvas.Height = 1
	}
	if c.Spawn.MaxEventsPerDispatch < 1 || c.Spawn.MaxEventsPerDispatch > 512 {
		c.Spawn.MaxEventsPerDispatch = 512
	}
	if c.Device.Workers < 0 {
		c.Device.Workers = 0
	}
	if c.Device.RecoveryBackoffMs < 0 {
		c.Device.RecoveryBackoffMs = 0
	}
	if c.Device.MaxRecoveryAttempts < 1 {
		c.Device.MaxRecoveryAttempts = 1
	}
	if c.Stats.FrameWindow < 1 {
		c.Stats.FrameWindow = 120
	}
	c.Brush = c.Brush.sanitized()
	for id, s := range c.Sessions {
		c.Sessions[id] = s.sanitized()
	}
	return c
}
