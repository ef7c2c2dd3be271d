package splatter

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Spawn implements Device: one logical thread per input event, each thread
// popping slots off the shared freelist. spawnID is incremented by the
// engine once per dispatch, never per particle, so particles from a later
// dispatch always out-rank earlier ones in recency even when they land in a
// recycled slot.
func (d *SoftwareDevice) Spawn(batch []InputEvent, spawnID uint64, settings *SessionTable) error {
	if len(batch) == 0 {
		return nil
	}
	capacity := len(d.particles)
	jitterPx := d.cfg.Particles.PaintJitterPixels
	d.shard(len(batch), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			ev := &batch[i]
			s := settings.Lookup(ev.SessionID)
			for pi := 0; pi < s.ParticlesPerEvent; pi++ {
				slot, ok := d.freelist.Allocate()
				if !ok {
					// Store exhausted: drop the rest of this event's
					// particles. Back-pressure, not an error.
					break
				}
				d.particles[slot] = spawnParticle(ev, s, spawnID, uint32(i), slot, uint32(pi), jitterPx, capacity)
			}
		}
	})
	return nil
}

// spawnParticle derives one particle record from an input event. All jitter
// comes from the stateless spawn hash, so the result depends only on the
// arguments: replaying a batch reproduces the exact same paint.
func spawnParticle(ev *InputEvent, s SessionSettings, spawnID uint64, event, slot, particle uint32, paintJitterPx float32, capacity int) Particle {
	r := newSpawnRand(spawnID, event, slot, particle)

	size := ev.Size * s.SizeScale * r.nextRange(0.9, 1.1)

	// Uniform jitter inside a disk: fixed pixel radius in paint mode,
	// size-proportional otherwise.
	radius := paintJitterPx
	if !s.PaintMode {
		radius = ev.Size * s.SizeScale * 0.2
	}
	dist := radius * float32(math.Sqrt(float64(r.next())))
	angle := 2 * math.Pi * float64(r.next())
	pos := mgl32.Vec3{
		ev.Position.X() + dist*float32(math.Cos(angle)),
		ev.Position.Y() + dist*float32(math.Sin(angle)),
		0,
	}

	base := s.BaseColor(ev.Color)
	var color mgl32.Vec4
	for c := 0; c < 3; c++ {
		color[c] = clamp01(base[c] * r.nextRange(0.9, 1.1))
	}
	color[3] = 1 // fully opaque at birth; fade owns alpha from here

	return Particle{
		Position:     pos,
		Velocity:     mgl32.Vec3{}, // paint does not move once laid down
		Color:        color,
		Size:         size,
		Age:          0,
		MaxLifetime:  s.BaseLifetime * r.nextRange(0.9, 1.1),
		TextureIndex: ev.TextureIndex & (AtlasTileCount - 1),
		SessionID:    ev.SessionID,
		RecencyTag:   PackRecency(spawnID, slot, capacity),
		InFreelist:   0,
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
