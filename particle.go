package splatter

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// AtlasTileCount is the number of brush tiles in one horizontal atlas strip.
	AtlasTileCount = 8

	// aliveAlphaThreshold is the opacity below which a particle no longer
	// counts as alive.
	aliveAlphaThreshold = 0.01

	// killAlphaThreshold force-kills near-invisible particles during fade so
	// the cull pass can reclaim their slots a frame early.
	killAlphaThreshold = 0.02

	// depthFarSentinel is the depth target clear value. Any live particle
	// compares smaller.
	depthFarSentinel = float32(1e9)

	// RecencyEpsilon scales the packed recency tag into the depth value. It
	// only breaks ties between particles whose ages are bitwise equal, so the
	// magnitude is irrelevant as long as it is positive.
	RecencyEpsilon = float32(1e-9)
)

// Particle is one fixed-size slot in the GPU-resident particle array. Paint
// particles are stationary deposits: Velocity is carried for forward
// compatibility but is always zero and never integrated.
type Particle struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3

	// Color is premultiplied RGBA. Alpha is recomputed from age every frame
	// by the fade kernel.
	Color mgl32.Vec4

	Size        float32
	Age         float32
	MaxLifetime float32

	// TextureIndex selects a tile (0..7) in the horizontal brush atlas.
	TextureIndex int32

	// SessionID identifies the input stream that laid down this particle.
	// Diagnostics only; compositing never reads it.
	SessionID int32

	// RecencyTag repurposes the old rotation slot as a depth tie-breaker.
	// See PackRecency. Never interpreted as an angle.
	RecencyTag float32

	// InFreelist is nonzero once the slot has been returned to the freelist.
	// Guards against the cull kernel double-freeing a slot it revisits on a
	// later frame. Stored as float32 to match the GPU-side record layout.
	InFreelist float32
}

// Alive reports whether the slot holds a live paint deposit.
func (p *Particle) Alive() bool {
	return p.Age < p.MaxLifetime && p.Color[3] > aliveAlphaThreshold
}

// PackRecency folds the per-dispatch spawn counter and the slot index into a
// single tie-break value. Later dispatches pack to strictly more negative
// tags, so at equal age a newer particle always produces a smaller depth
// value. Slot reuse within one dispatch cannot collide because the slot index
// participates. Precision degrades for very large counters; the ordering of
// nearby dispatches is what matters and that survives.
func PackRecency(spawnID uint64, slot uint32, capacity int) float32 {
	return -float32(spawnID*uint64(capacity) + uint64(slot))
}

// ParticleZ is the synthetic depth used by the compositor: smaller means
// more recently spawned. Age dominates across frames, the recency tag breaks
// same-frame ties.
func ParticleZ(age, recencyTag float32) float32 {
	return age + recencyTag*RecencyEpsilon
}

// deadParticle is the slot state at startup and after a clear: already dead,
// already marked as freelisted so the cull kernel skips it.
func deadParticle() Particle {
	return Particle{
		MaxLifetime: 0,
		InFreelist:  1,
	}
}
