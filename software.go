package splatter

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// SoftwareDevice runs the particle kernels on the CPU, sharding the slot
// array across worker goroutines. It is the reference implementation of the
// dispatch model (one logical thread per slot, atomic counters, no locks)
// and the fallback when no GPU is available. The wgpu backend in gpu/
// mirrors it kernel for kernel.
type SoftwareDevice struct {
	cfg Config
	log Logger

	particles []Particle
	freelist  *Freelist
	alive     atomic.Int64

	width  int
	height int
	color  []float32 // width*height premultiplied RGBA
	depth  []float32 // width*height, far sentinel when untouched

	atlas   atomic.Pointer[Atlas]
	workers int

	released bool
}

// NewSoftwareDevice allocates the particle store, freelist, and canvas
// targets. The config must already be clamped.
func NewSoftwareDevice(cfg Config, log Logger) *SoftwareDevice {
	if log == nil {
		log = NewNopLogger()
	}
	workers := cfg.Device.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &SoftwareDevice{
		cfg:       cfg,
		log:       log,
		particles: make([]Particle, cfg.Particles.Capacity),
		freelist:  NewFreelist(cfg.Particles.Capacity),
		workers:   workers,
	}
	for i := range d.particles {
		d.particles[i] = deadParticle()
	}
	d.allocTargets(cfg.Canvas.Width, cfg.Canvas.Height)
	log.Debugf("software device: %d slots, %dx%d canvas, %d workers",
		cfg.Particles.Capacity, d.width, d.height, workers)
	return d
}

func (d *SoftwareDevice) allocTargets(w, h int) {
	d.width = w
	d.height = h
	d.color = make([]float32, w*h*4)
	d.depth = make([]float32, w*h)
	for i := range d.depth {
		d.depth[i] = depthFarSentinel
	}
}

// shard splits [0, n) into contiguous ranges and runs fn on each range in
// its own goroutine. Blocks until every range completes.
func (d *SoftwareDevice) shard(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := d.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	var wg sync.WaitGroup
	step := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += step {
		hi := lo + step
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// Capacity implements Device.
func (d *SoftwareDevice) Capacity() int { return len(d.particles) }

// Width returns the current canvas width.
func (d *SoftwareDevice) Width() int { return d.width }

// Height returns the current canvas height.
func (d *SoftwareDevice) Height() int { return d.height }

// ColorBuffer returns the live color target. Rows are y-major premultiplied
// RGBA float32. Valid until the next Resize.
func (d *SoftwareDevice) ColorBuffer() []float32 { return d.color }

// DepthBuffer returns the live depth target.
func (d *SoftwareDevice) DepthBuffer() []float32 { return d.depth }

// BeginFrame implements Device: clears both targets.
func (d *SoftwareDevice) BeginFrame() error {
	d.shard(d.height, func(lo, hi int) {
		colorRow := d.color[lo*d.width*4 : hi*d.width*4]
		for i := range colorRow {
			colorRow[i] = 0
		}
		depthRow := d.depth[lo*d.width : hi*d.width]
		for i := range depthRow {
			depthRow[i] = depthFarSentinel
		}
	})
	return nil
}

// ReadStats implements Device. Free of device copies on the CPU path.
func (d *SoftwareDevice) ReadStats() (DeviceStats, error) {
	return DeviceStats{
		Alive: int(d.alive.Load()),
		Free:  d.freelist.Count(),
	}, nil
}

// ReadColor copies the color target into dst, which must hold
// width*height*4 floats.
func (d *SoftwareDevice) ReadColor(dst []float32) error {
	copy(dst, d.color)
	return nil
}

// ReadDepth copies the depth target into dst, which must hold width*height
// floats.
func (d *SoftwareDevice) ReadDepth(dst []float32) error {
	copy(dst, d.depth)
	return nil
}

// Resize implements Device. The store is untouched; particles outside the
// new canvas simply stop rasterizing.
func (d *SoftwareDevice) Resize(width, height int) error {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width == d.width && height == d.height {
		return nil
	}
	d.allocTargets(width, height)
	return nil
}

// Clear implements Device: kills every slot and rebuilds the freelist.
func (d *SoftwareDevice) Clear() error {
	for i := range d.particles {
		d.particles[i] = deadParticle()
	}
	d.freelist.Reset()
	d.alive.Store(0)
	return d.BeginFrame()
}

// SetAtlas implements Device.
func (d *SoftwareDevice) SetAtlas(a *Atlas) error {
	d.atlas.Store(a)
	return nil
}

// Release implements Device.
func (d *SoftwareDevice) Release() {
	d.released = true
	d.particles = nil
	d.color = nil
	d.depth = nil
}

// Freelist exposes the slot allocator for diagnostics and tests.
func (d *SoftwareDevice) Freelist() *Freelist { return d.freelist }

// Particle returns a copy of one slot record. Diagnostics only.
func (d *SoftwareDevice) Particle(slot int) Particle { return d.particles[slot] }
