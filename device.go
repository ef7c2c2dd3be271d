package splatter

import (
	"errors"
)

// ErrDeviceLost reports that the compute backend lost its device (driver
// reset, surface teardown). The in-flight frame is abandoned and the engine
// attempts a full reinitialization after a backoff.
var ErrDeviceLost = errors.New("splatter: compute device lost")

// DeviceStats is the synchronous device-to-host statistics snapshot. Reading it
// may block on a device copy, so callers sample it sparingly.
type DeviceStats struct {
	Alive int
	Free  int
}

// Device is one compute backend holding the particle store, the freelist,
// and the color/depth targets. Kernels are issued in strict program order by
// the engine once per frame; within a dispatch the device runs slot threads
// concurrently and in no defined order.
//
// Two implementations exist: the goroutine-sharded software device in this
// package, and the wgpu compute device in gpu/.
type Device interface {
	// Capacity returns the fixed slot count of the particle store.
	Capacity() int

	// BeginFrame clears the color target to transparent and the depth
	// target to the far sentinel.
	BeginFrame() error

	// Spawn dispatches one capped event batch. spawnID is the value of the
	// global spawn counter for this dispatch; settings supply per-session
	// brushes. Allocation exhaustion truncates silently.
	Spawn(batch []InputEvent, spawnID uint64, settings *SessionTable) error

	// Update advances age and recomputes fade opacity for every slot.
	Update(dt float32) error

	// Cull resets the alive counter, counts live slots, and returns dead
	// slots to the freelist exactly once.
	Cull() error

	// Composite rasterizes every live particle into the color/depth targets
	// with depth-gated premultiplied source-over blending.
	Composite() error

	// ReadStats synchronously reads the alive and free counters.
	ReadStats() (DeviceStats, error)

	// Resize reallocates the color/depth targets. Dimensions are clamped to
	// at least 1x1 by the caller.
	Resize(width, height int) error

	// Clear kills every particle and repopulates the freelist.
	Clear() error

	// SetAtlas installs the brush atlas; nil reverts to solid-disk
	// rendering.
	SetAtlas(a *Atlas) error

	// Release frees device resources. The device is unusable afterwards.
	Release()
}

// TargetReader is implemented by devices that can copy their canvas targets
// back to the host. Both backends do; snapshot and test paths use it through
// the engine rather than reaching for a concrete device.
type TargetReader interface {
	// ReadColor copies the premultiplied RGBA color target into dst
	// (width*height*4 floats).
	ReadColor(dst []float32) error

	// ReadDepth copies the depth target into dst (width*height floats).
	ReadDepth(dst []float32) error
}
