package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/splatterlab/splatter"
)

// lost wraps a wgpu failure that occurred after successful initialization.
// At that point the only realistic cause is device loss, so the engine's
// recovery path owns it.
func lost(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, splatter.ErrDeviceLost)
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// writeParams refreshes the shared uniform before a dispatch. The layout
// matches struct Params in every WGSL kernel.
func (d *Device) writeParams(dt float32, eventCount uint32, spawnID uint64) {
	data := make([]byte, paramsSize)
	putF32(data[0:], float32(d.width))
	putF32(data[4:], float32(d.height))
	putF32(data[8:], dt)
	putF32(data[12:], d.cfg.Particles.FadeStart)
	binary.LittleEndian.PutUint32(data[16:], eventCount)
	binary.LittleEndian.PutUint32(data[20:], uint32(spawnID))
	binary.LittleEndian.PutUint32(data[24:], uint32(d.capacity))
	putF32(data[28:], d.cfg.Particles.PaintJitterPixels)
	putF32(data[32:], splatter.RecencyEpsilon)
	useAtlas := uint32(0)
	if d.useAtlas {
		useAtlas = 1
	}
	binary.LittleEndian.PutUint32(data[36:], useAtlas)
	binary.LittleEndian.PutUint32(data[40:], d.atlasTile)
	d.queue.WriteBuffer(d.paramsBuf, 0, data)
}

// dispatch submits one compute pass of ceil(threads/64) workgroups.
func (d *Device) dispatch(label string, pipeline *wgpu.ComputePipeline, bg *wgpu.BindGroup, threads int) error {
	if threads <= 0 {
		return nil
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return lost(label, err)
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(uint32((threads+workgroupSize-1)/workgroupSize), 1, 1)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return lost(label, err)
	}
	d.queue.Submit(cmd)
	return nil
}

// BeginFrame implements splatter.Device: clears both canvas targets.
func (d *Device) BeginFrame() error {
	d.writeParams(0, 0, 0)
	return d.dispatch("clear", d.clearPipeline, d.clearBG, d.width*d.height)
}

// Spawn implements splatter.Device. Session brush settings are resolved on
// the host and baked into the uploaded event records; the kernel only pops
// slots and derives jittered attributes.
func (d *Device) Spawn(batch []splatter.InputEvent, spawnID uint64, settings *splatter.SessionTable) error {
	if len(batch) == 0 {
		return nil
	}
	if len(batch) > maxEventsPerDispatch {
		batch = batch[:maxEventsPerDispatch]
	}

	data := make([]byte, len(batch)*eventStride)
	for i := range batch {
		ev := &batch[i]
		s := settings.Lookup(ev.SessionID)
		size := ev.Size * s.SizeScale
		jitter := d.cfg.Particles.PaintJitterPixels
		if !s.PaintMode {
			jitter = size * 0.2
		}
		o := i * eventStride
		putF32(data[o+0:], ev.Position.X())
		putF32(data[o+4:], ev.Position.Y())
		putF32(data[o+8:], size)
		putF32(data[o+12:], s.BaseLifetime)
		color := s.BaseColor(ev.Color)
		putF32(data[o+16:], color[0])
		putF32(data[o+20:], color[1])
		putF32(data[o+24:], color[2])
		putF32(data[o+28:], color[3])
		putF32(data[o+32:], float32(s.ParticlesPerEvent))
		putF32(data[o+36:], float32(ev.TextureIndex&(splatter.AtlasTileCount-1)))
		putF32(data[o+40:], float32(ev.SessionID))
		putF32(data[o+44:], jitter)
	}
	d.queue.WriteBuffer(d.eventsBuf, 0, data)
	d.writeParams(0, uint32(len(batch)), spawnID)
	return d.dispatch("spawn", d.spawnPipeline, d.spawnBG, len(batch))
}

// Update implements splatter.Device.
func (d *Device) Update(dt float32) error {
	d.writeParams(dt, 0, 0)
	return d.dispatch("update", d.updatePipeline, d.updateBG, d.capacity)
}

// Cull implements splatter.Device. The alive counter is zeroed by a host
// write immediately before the dispatch.
func (d *Device) Cull() error {
	d.queue.WriteBuffer(d.countersBuf, 4, make([]byte, 4))
	d.writeParams(0, 0, 0)
	return d.dispatch("cull", d.cullPipeline, d.cullBG, d.capacity)
}

// Composite implements splatter.Device.
func (d *Device) Composite() error {
	d.writeParams(0, 0, 0)
	return d.dispatch("composite", d.compositePipeline, d.compositeBG, d.capacity)
}
