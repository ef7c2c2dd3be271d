package splatter

// Stateless per-spawn random source. Every spawned particle derives its
// jitter from a hash of (spawn counter, event index, slot index, particle
// index), so threads never share RNG state and a replayed input batch
// produces identical particles. The same mix runs in the WGSL spawn kernel.

const (
	hashMul1 = 0x9E3779B1
	hashMul2 = 0x85EBCA77
	hashMul3 = 0xC2B2AE3D
	hashMul4 = 0x27D4EB2F
)

func mix32(h uint32) uint32 {
	h ^= h >> 15
	h *= 0x2C1B3C6D
	h ^= h >> 12
	h *= 0x297A2D39
	h ^= h >> 15
	return h
}

func hashSeed(spawnID uint64, event, slot, particle uint32) uint32 {
	h := uint32(spawnID)*hashMul1 ^ uint32(spawnID>>32)*hashMul2
	h ^= event * hashMul3
	h ^= slot * hashMul4
	h ^= particle * hashMul1
	return mix32(h)
}

// spawnRand is a tiny LCG seeded from the spawn hash. Good enough for visual
// jitter, cheap enough for one instance per particle per dispatch.
type spawnRand struct {
	state uint32
}

func newSpawnRand(spawnID uint64, event, slot, particle uint32) spawnRand {
	return spawnRand{state: hashSeed(spawnID, event, slot, particle)}
}

// next returns a uniform float in [0, 1).
func (r *spawnRand) next() float32 {
	r.state = r.state*1664525 + 1013904223
	return float32(r.state>>8) * (1.0 / 16777216.0)
}

// nextRange returns a uniform float in [lo, hi).
func (r *spawnRand) nextRange(lo, hi float32) float32 {
	return lo + (hi-lo)*r.next()
}
