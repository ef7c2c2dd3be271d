package splatter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100000, cfg.Particles.Capacity)
	assert.InDelta(t, 0.6, cfg.Particles.FadeStart, 1e-6)
	assert.Equal(t, 512, cfg.Spawn.MaxEventsPerDispatch)
	assert.Equal(t, 1280, cfg.Canvas.Width)
	assert.Equal(t, 720, cfg.Canvas.Height)
	assert.GreaterOrEqual(t, cfg.Brush.ParticlesPerEvent, 1)
	assert.Greater(t, cfg.Brush.BaseLifetime, float32(0))
}

func TestClampedForcesSafeRanges(t *testing.T) {
	cfg := Config{
		Particles: ParticleConfig{Capacity: -1, FadeStart: 1.5, PaintJitterPixels: -3},
		Canvas:    CanvasConfig{Width: 0, Height: -10},
		Spawn:     SpawnConfig{MaxEventsPerDispatch: 100000},
		Device:    DeviceConfig{Workers: -2, MaxRecoveryAttempts: 0},
	}.Clamped()

	assert.Equal(t, 1, cfg.Particles.Capacity)
	assert.InDelta(t, 0.6, cfg.Particles.FadeStart, 1e-6)
	assert.Equal(t, float32(0), cfg.Particles.PaintJitterPixels)
	assert.Equal(t, 1, cfg.Canvas.Width)
	assert.Equal(t, 1, cfg.Canvas.Height)
	assert.Equal(t, 512, cfg.Spawn.MaxEventsPerDispatch)
	assert.Equal(t, 0, cfg.Device.Workers)
	assert.Equal(t, 1, cfg.Device.MaxRecoveryAttempts)
	assert.Equal(t, 1, cfg.Brush.ParticlesPerEvent)
	assert.Equal(t, float32(1), cfg.Brush.SizeScale)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splatter.yaml")
	body := `
particles:
  capacity: 5000
brush:
  base_lifetime: 4.5
  particles_per_event: 3
sessions:
  2:
    base_lifetime: 2
    paint_mode: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Particles.Capacity)
	assert.InDelta(t, 4.5, cfg.Brush.BaseLifetime, 1e-6)
	assert.Equal(t, 3, cfg.Brush.ParticlesPerEvent)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1280, cfg.Canvas.Width)

	s, ok := cfg.Sessions[2]
	require.True(t, ok)
	assert.True(t, s.PaintMode)
	assert.Equal(t, 1, s.ParticlesPerEvent, "session records are sanitized too")
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("particles: ["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
