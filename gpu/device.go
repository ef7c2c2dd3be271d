// Package gpu implements the wgpu compute backend of the particle engine.
// It mirrors the software device kernel for kernel: the particle store, the
// freelist, and both canvas targets live in storage buffers, and every
// lifecycle stage is one compute dispatch over 64-wide workgroups.
package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/splatterlab/splatter"
	"github.com/splatterlab/splatter/shaders"
)

const (
	particleStride = 80
	eventStride    = 48
	paramsSize     = 48
	countersSize   = 16
	workgroupSize  = 64

	// maxEventsPerDispatch bounds the events buffer; the engine caps
	// batches to the same limit.
	maxEventsPerDispatch = 512
)

// Device is the wgpu implementation of splatter.Device.
type Device struct {
	cfg splatter.Config
	log splatter.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	owned    bool

	particleBuf *wgpu.Buffer
	freelistBuf *wgpu.Buffer
	countersBuf *wgpu.Buffer
	eventsBuf   *wgpu.Buffer
	paramsBuf   *wgpu.Buffer
	atlasBuf    *wgpu.Buffer
	colorBuf    *wgpu.Buffer
	depthBuf    *wgpu.Buffer
	readbackBuf *wgpu.Buffer

	clearPipeline     *wgpu.ComputePipeline
	spawnPipeline     *wgpu.ComputePipeline
	updatePipeline    *wgpu.ComputePipeline
	cullPipeline      *wgpu.ComputePipeline
	compositePipeline *wgpu.ComputePipeline

	clearBG     *wgpu.BindGroup
	spawnBG     *wgpu.BindGroup
	updateBG    *wgpu.BindGroup
	cullBG      *wgpu.BindGroup
	compositeBG *wgpu.BindGroup

	width     int
	height    int
	capacity  int
	atlasTile uint32
	useAtlas  bool
}

// New creates a headless wgpu device: instance, high-performance adapter,
// device, buffers, and the five kernel pipelines.
func New(cfg splatter.Config, log splatter.Logger) (*Device, error) {
	if log == nil {
		log = splatter.NewNopLogger()
	}
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Splatter Device",
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	d := &Device{
		cfg:      cfg,
		log:      log,
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		owned:    true,
	}
	if err := d.init(); err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

// NewWithDevice wraps an externally owned wgpu device, e.g. the one driving
// a window surface, so the paint targets can be sampled without a copy.
func NewWithDevice(device *wgpu.Device, cfg splatter.Config, log splatter.Logger) (*Device, error) {
	if log == nil {
		log = splatter.NewNopLogger()
	}
	d := &Device{
		cfg:    cfg,
		log:    log,
		device: device,
		queue:  device.GetQueue(),
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	d.capacity = d.cfg.Particles.Capacity
	d.width = d.cfg.Canvas.Width
	d.height = d.cfg.Canvas.Height

	if err := d.createStoreBuffers(); err != nil {
		return err
	}
	if err := d.createTargetBuffers(d.width, d.height); err != nil {
		return err
	}
	if err := d.createPipelines(); err != nil {
		return err
	}
	if err := d.createBindGroups(); err != nil {
		return err
	}
	d.log.Debugf("gpu device: %d slots, %dx%d canvas", d.capacity, d.width, d.height)
	return nil
}

func (d *Device) createStoreBuffers() error {
	var err error

	d.particleBuf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "ParticleBuf",
		Contents: deadStoreBytes(d.capacity),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create particle buffer: %w", err)
	}

	d.freelistBuf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "FreelistBuf",
		Contents: freelistBytes(d.capacity),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create freelist buffer: %w", err)
	}

	d.countersBuf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "CountersBuf",
		Contents: countersBytes(d.capacity, 0),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create counters buffer: %w", err)
	}

	d.eventsBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "EventsBuf",
		Size:  uint64(maxEventsPerDispatch * eventStride),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create events buffer: %w", err)
	}

	d.paramsBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ParamsBuf",
		Size:  paramsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create params buffer: %w", err)
	}

	// A one-texel placeholder keeps the composite bind group valid before
	// an atlas is installed.
	d.atlasBuf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "AtlasBuf",
		Contents: make([]byte, 16),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create atlas buffer: %w", err)
	}

	d.readbackBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "StatsReadbackBuf",
		Size:  countersSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create readback buffer: %w", err)
	}
	return nil
}

func (d *Device) createTargetBuffers(w, h int) error {
	pixels := uint64(w) * uint64(h)
	var err error

	d.colorBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ColorTargetBuf",
		Size:  pixels * 16,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color target: %w", err)
	}

	d.depthBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "DepthTargetBuf",
		Size:  pixels * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create depth target: %w", err)
	}
	return nil
}

func (d *Device) createComputePipeline(label, code string) (*wgpu.ComputePipeline, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	defer module.Release()

	pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline: %w", label, err)
	}
	return pipeline, nil
}

func (d *Device) createPipelines() error {
	var err error
	if d.clearPipeline, err = d.createComputePipeline("ClearKernel", shaders.ClearWGSL); err != nil {
		return err
	}
	if d.spawnPipeline, err = d.createComputePipeline("SpawnKernel", shaders.SpawnWGSL); err != nil {
		return err
	}
	if d.updatePipeline, err = d.createComputePipeline("UpdateKernel", shaders.UpdateWGSL); err != nil {
		return err
	}
	if d.cullPipeline, err = d.createComputePipeline("CullKernel", shaders.CullWGSL); err != nil {
		return err
	}
	if d.compositePipeline, err = d.createComputePipeline("CompositeKernel", shaders.CompositeWGSL); err != nil {
		return err
	}
	return nil
}

func (d *Device) bindGroup(pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	return d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
}

func buf(binding uint32, b *wgpu.Buffer) wgpu.BindGroupEntry {
	return wgpu.BindGroupEntry{Binding: binding, Buffer: b, Size: wgpu.WholeSize}
}

func (d *Device) createBindGroups() error {
	var err error
	if d.clearBG, err = d.bindGroup(d.clearPipeline, []wgpu.BindGroupEntry{
		buf(0, d.paramsBuf), buf(1, d.colorBuf), buf(2, d.depthBuf),
	}); err != nil {
		return fmt.Errorf("clear bind group: %w", err)
	}
	if d.spawnBG, err = d.bindGroup(d.spawnPipeline, []wgpu.BindGroupEntry{
		buf(0, d.paramsBuf), buf(1, d.particleBuf), buf(2, d.freelistBuf),
		buf(3, d.countersBuf), buf(4, d.eventsBuf),
	}); err != nil {
		return fmt.Errorf("spawn bind group: %w", err)
	}
	if d.updateBG, err = d.bindGroup(d.updatePipeline, []wgpu.BindGroupEntry{
		buf(0, d.paramsBuf), buf(1, d.particleBuf),
	}); err != nil {
		return fmt.Errorf("update bind group: %w", err)
	}
	if d.cullBG, err = d.bindGroup(d.cullPipeline, []wgpu.BindGroupEntry{
		buf(0, d.paramsBuf), buf(1, d.particleBuf), buf(2, d.freelistBuf),
		buf(3, d.countersBuf),
	}); err != nil {
		return fmt.Errorf("cull bind group: %w", err)
	}
	if d.compositeBG, err = d.bindGroup(d.compositePipeline, []wgpu.BindGroupEntry{
		buf(0, d.paramsBuf), buf(1, d.particleBuf), buf(2, d.colorBuf),
		buf(3, d.depthBuf), buf(4, d.atlasBuf),
	}); err != nil {
		return fmt.Errorf("composite bind group: %w", err)
	}
	return nil
}

// Capacity implements splatter.Device.
func (d *Device) Capacity() int { return d.capacity }

// Width returns the current canvas width.
func (d *Device) Width() int { return d.width }

// Height returns the current canvas height.
func (d *Device) Height() int { return d.height }

// ColorTarget returns the color storage buffer for present pipelines.
func (d *Device) ColorTarget() *wgpu.Buffer { return d.colorBuf }

// ParamsBuffer returns the shared params uniform for present pipelines.
func (d *Device) ParamsBuffer() *wgpu.Buffer { return d.paramsBuf }

// WgpuDevice returns the underlying wgpu device.
func (d *Device) WgpuDevice() *wgpu.Device { return d.device }

// Resize implements splatter.Device: reallocates the canvas targets and the
// bind groups that reference them.
func (d *Device) Resize(width, height int) error {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width == d.width && height == d.height {
		return nil
	}
	d.width = width
	d.height = height

	releaseBuffer(&d.colorBuf)
	releaseBuffer(&d.depthBuf)
	if err := d.createTargetBuffers(width, height); err != nil {
		return err
	}
	releaseBindGroup(&d.clearBG)
	releaseBindGroup(&d.spawnBG)
	releaseBindGroup(&d.updateBG)
	releaseBindGroup(&d.cullBG)
	releaseBindGroup(&d.compositeBG)
	return d.createBindGroups()
}

// Clear implements splatter.Device: rewrites the store, the freelist, and
// the counters to their initial state.
func (d *Device) Clear() error {
	d.queue.WriteBuffer(d.particleBuf, 0, deadStoreBytes(d.capacity))
	d.queue.WriteBuffer(d.freelistBuf, 0, freelistBytes(d.capacity))
	d.queue.WriteBuffer(d.countersBuf, 0, countersBytes(d.capacity, 0))
	return d.BeginFrame()
}

// SetAtlas implements splatter.Device: uploads the premultiplied texel strip.
func (d *Device) SetAtlas(a *splatter.Atlas) error {
	if a == nil {
		d.useAtlas = false
		d.atlasTile = 0
		return nil
	}
	texels := a.Texels()
	data := make([]byte, len(texels)*4)
	for i, v := range texels {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	if d.atlasBuf == nil || d.atlasBuf.GetSize() < uint64(len(data)) {
		releaseBuffer(&d.atlasBuf)
		var err error
		d.atlasBuf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "AtlasBuf",
			Contents: data,
			Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create atlas buffer: %w", err)
		}
		releaseBindGroup(&d.compositeBG)
		var bgErr error
		if d.compositeBG, bgErr = d.bindGroup(d.compositePipeline, []wgpu.BindGroupEntry{
			buf(0, d.paramsBuf), buf(1, d.particleBuf), buf(2, d.colorBuf),
			buf(3, d.depthBuf), buf(4, d.atlasBuf),
		}); bgErr != nil {
			return fmt.Errorf("composite bind group: %w", bgErr)
		}
	} else {
		d.queue.WriteBuffer(d.atlasBuf, 0, data)
	}

	d.useAtlas = true
	d.atlasTile = uint32(a.TileSize())
	return nil
}

// Release implements splatter.Device.
func (d *Device) Release() {
	releaseBindGroup(&d.clearBG)
	releaseBindGroup(&d.spawnBG)
	releaseBindGroup(&d.updateBG)
	releaseBindGroup(&d.cullBG)
	releaseBindGroup(&d.compositeBG)
	releasePipeline(&d.clearPipeline)
	releasePipeline(&d.spawnPipeline)
	releasePipeline(&d.updatePipeline)
	releasePipeline(&d.cullPipeline)
	releasePipeline(&d.compositePipeline)
	releaseBuffer(&d.particleBuf)
	releaseBuffer(&d.freelistBuf)
	releaseBuffer(&d.countersBuf)
	releaseBuffer(&d.eventsBuf)
	releaseBuffer(&d.paramsBuf)
	releaseBuffer(&d.atlasBuf)
	releaseBuffer(&d.colorBuf)
	releaseBuffer(&d.depthBuf)
	releaseBuffer(&d.readbackBuf)
	if d.owned {
		if d.device != nil {
			d.device.Release()
			d.device = nil
		}
		if d.adapter != nil {
			d.adapter.Release()
			d.adapter = nil
		}
		if d.instance != nil {
			d.instance.Release()
			d.instance = nil
		}
	}
}

func releaseBuffer(b **wgpu.Buffer) {
	if *b != nil {
		(*b).Release()
		*b = nil
	}
}

func releaseBindGroup(b **wgpu.BindGroup) {
	if *b != nil {
		(*b).Release()
		*b = nil
	}
}

func releasePipeline(p **wgpu.ComputePipeline) {
	if *p != nil {
		(*p).Release()
		*p = nil
	}
}

// deadStoreBytes serializes a store full of dead, already-freelisted
// particles (inFreelist = 1, everything else zero).
func deadStoreBytes(capacity int) []byte {
	data := make([]byte, capacity*particleStride)
	one := math.Float32bits(1)
	for i := 0; i < capacity; i++ {
		// misc.w, the inFreelist flag.
		binary.LittleEndian.PutUint32(data[i*particleStride+60:], one)
	}
	return data
}

// freelistBytes serializes a full freelist: every slot index pushed.
func freelistBytes(capacity int) []byte {
	data := make([]byte, capacity*4)
	for i := 0; i < capacity; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(i))
	}
	return data
}

// countersBytes serializes the counters block: free_top then alive.
func countersBytes(freeTop int, alive uint32) []byte {
	data := make([]byte, countersSize)
	binary.LittleEndian.PutUint32(data[0:], uint32(int32(freeTop)))
	binary.LittleEndian.PutUint32(data[4:], alive)
	return data
}
