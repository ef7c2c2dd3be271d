package splatter

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DeviceFactory builds a compute device for the engine. Used at startup and
// again during device-loss recovery.
type DeviceFactory func(cfg Config, log Logger) (Device, error)

// Engine is the host-side frame driver. Once per frame it issues the
// kernels in strict order: clear targets, spawn pending batches, update,
// reset alive counter and cull. Compositing runs on demand via Render.
//
// All entry points are safe for concurrent use; the frame sequence itself
// is serialized by a mutex while the kernels inside a dispatch run
// device-parallel.
type Engine struct {
	cfg     Config
	log     Logger
	factory DeviceFactory

	mu           sync.Mutex
	dev          Device
	sessions     *SessionTable
	pending      []InputEvent
	spawnCounter uint64
	frames       *frameWindow
	prof         *Profiler
	atlas        *Atlas
	width        int
	height       int

	initialized atomic.Bool
	recovering  atomic.Bool
}

// NewEngine builds an engine over a freshly created device. A nil factory
// selects the software device.
func NewEngine(cfg Config, log Logger, factory DeviceFactory) (*Engine, error) {
	cfg = cfg.Clamped()
	if log == nil {
		log = NewNopLogger()
	}
	if factory == nil {
		factory = func(cfg Config, log Logger) (Device, error) {
			return NewSoftwareDevice(cfg, log), nil
		}
	}
	dev, err := factory(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		log:     log,
		factory: factory,
		dev:     dev,
		frames:  newFrameWindow(cfg.Stats.FrameWindow),
		prof:    NewProfiler(),
		width:   cfg.Canvas.Width,
		height:  cfg.Canvas.Height,
	}
	e.sessions = NewSessionTable(cfg.Brush)
	for id, s := range cfg.Sessions {
		e.sessions.Set(id, s)
	}
	e.initialized.Store(true)
	log.Infof("engine initialized: capacity=%d canvas=%dx%d", dev.Capacity(), e.width, e.height)
	return e, nil
}

// Sessions returns the per-session brush table. Safe to tune while the
// frame loop runs.
func (e *Engine) Sessions() *SessionTable { return e.sessions }

// Device returns the current compute device. Present paths that need the
// concrete backend (e.g. the wgpu buffers) type-assert on this.
func (e *Engine) Device() Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev
}

// Profiler returns the frame profiler for diagnostics overlays.
func (e *Engine) Profiler() *Profiler { return e.prof }

// ProcessInputEvents queues a batch of decoded input events for the next
// frame. No-op while the device is lost.
func (e *Engine) ProcessInputEvents(events []InputEvent) {
	if len(events) == 0 || !e.initialized.Load() {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, events...)
	e.mu.Unlock()
}

// Update runs one frame of the particle lifecycle. Silent no-op while the
// device is lost.
func (e *Engine) Update(dt float32) {
	if !e.initialized.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev == nil {
		return
	}

	start := time.Now()
	err := e.runFrame(dt)
	e.frames.Record(time.Since(start))

	if err != nil {
		e.handleDispatchError("frame", err)
	}
}

// runFrame issues the per-frame kernel sequence. Any panic out of a kernel
// surfaces as an error so a bad dispatch degrades to last-good-frame
// instead of tearing down the loop.
func (e *Engine) runFrame(dt float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel dispatch panic: %v", r)
		}
	}()

	e.prof.BeginScope("clear")
	if err := e.dev.BeginFrame(); err != nil {
		return err
	}
	e.prof.EndScope("clear")

	e.prof.BeginScope("spawn")
	if err := e.flushSpawns(); err != nil {
		return err
	}
	e.prof.EndScope("spawn")

	e.prof.BeginScope("update")
	if err := e.dev.Update(dt); err != nil {
		return err
	}
	e.prof.EndScope("update")

	e.prof.BeginScope("cull")
	if err := e.dev.Cull(); err != nil {
		return err
	}
	e.prof.EndScope("cull")
	return nil
}

// flushSpawns splits the pending queue into capped dispatches. The spawn
// counter advances once per dispatch so later dispatches always out-rank
// earlier ones in recency, even within a single frame.
func (e *Engine) flushSpawns() error {
	maxPer := e.cfg.Spawn.MaxEventsPerDispatch
	dispatches := 0
	for len(e.pending) > 0 {
		n := len(e.pending)
		if n > maxPer {
			n = maxPer
		}
		batch := e.pending[:n]
		e.spawnCounter++
		if err := e.dev.Spawn(batch, e.spawnCounter, e.sessions); err != nil {
			return err
		}
		e.pending = e.pending[n:]
		dispatches++
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	e.prof.SetCount("spawnDispatch", dispatches)
	return nil
}

// Render composites the current store into the color target. Called by the
// display path whenever a frame is needed.
func (e *Engine) Render() {
	if !e.initialized.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev == nil {
		return
	}

	e.prof.BeginScope("composite")
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("composite panic: %v", r)
			}
		}()
		return e.dev.Composite()
	}()
	e.prof.EndScope("composite")

	if err != nil {
		e.handleDispatchError("composite", err)
	}
}

// Statistics reads back the device counters. This is the one synchronous
// device-to-host copy the engine performs; callers sample it sparingly.
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Capacity:    e.cfg.Particles.Capacity,
		LastFrameMs: e.frames.Last(),
		AvgFrameMs:  e.frames.Avg(),
	}
	if !e.initialized.Load() || e.dev == nil {
		return stats
	}
	ds, err := e.dev.ReadStats()
	if err != nil {
		e.handleDispatchError("stats", err)
		return stats
	}
	stats.Alive = ds.Alive
	stats.FreelistCount = ds.Free
	return stats
}

// FreelistCount returns the current number of free slots.
func (e *Engine) FreelistCount() int {
	return e.Statistics().FreelistCount
}

// ReadColor copies the current color target into dst (width*height*4
// premultiplied RGBA floats). Expensive on the GPU backend; snapshot use
// only.
func (e *Engine) ReadColor(dst []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized.Load() || e.dev == nil {
		return ErrDeviceLost
	}
	r, ok := e.dev.(TargetReader)
	if !ok {
		return fmt.Errorf("device does not expose its targets")
	}
	return r.ReadColor(dst)
}

// ReadDepth copies the current depth target into dst (width*height floats).
func (e *Engine) ReadDepth(dst []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized.Load() || e.dev == nil {
		return ErrDeviceLost
	}
	r, ok := e.dev.(TargetReader)
	if !ok {
		return fmt.Errorf("device does not expose its targets")
	}
	return r.ReadDepth(dst)
}

// ClearAll wipes the canvas, kills every particle, and reinitializes the
// freelist. Pending input is dropped with the paint.
func (e *Engine) ClearAll() {
	if !e.initialized.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dev == nil {
		return
	}
	e.pending = nil
	if err := e.dev.Clear(); err != nil {
		e.handleDispatchError("clear", err)
	}
}

// Resize adjusts the canvas targets. Dimensions are clamped to a safe
// minimum rather than rejected.
func (e *Engine) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width = width
	e.height = height
	if !e.initialized.Load() || e.dev == nil {
		return
	}
	if err := e.dev.Resize(width, height); err != nil {
		e.handleDispatchError("resize", err)
	}
}

// SetAtlas installs the brush atlas on the device; nil reverts to solid
// disks. The atlas is re-applied after device recovery.
func (e *Engine) SetAtlas(a *Atlas) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.atlas = a
	if !e.initialized.Load() || e.dev == nil {
		return
	}
	if err := e.dev.SetAtlas(a); err != nil {
		e.handleDispatchError("atlas", err)
	}
}

// Close releases the device.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized.Store(false)
	if e.dev != nil {
		e.dev.Release()
		e.dev = nil
	}
}

// handleDispatchError routes a kernel failure: device loss starts async
// recovery, anything else is logged and the frame loop carries on with the
// last good frame. Callers hold e.mu.
func (e *Engine) handleDispatchError(stage string, err error) {
	if errors.Is(err, ErrDeviceLost) {
		e.log.Errorf("%s: device lost: %v", stage, err)
		e.beginRecovery()
		return
	}
	e.log.Errorf("%s dispatch failed: %v", stage, err)
}

// beginRecovery tears the device down and reinitializes it on a background
// goroutine with backoff. Until it succeeds every engine entry point is a
// silent no-op. Callers hold e.mu.
func (e *Engine) beginRecovery() {
	if !e.recovering.CompareAndSwap(false, true) {
		return
	}
	e.initialized.Store(false)
	if e.dev != nil {
		e.dev.Release()
		e.dev = nil
	}
	width, height := e.width, e.height
	atlas := e.atlas

	go func() {
		defer e.recovering.Store(false)
		backoff := time.Duration(e.cfg.Device.RecoveryBackoffMs) * time.Millisecond
		for attempt := 1; attempt <= e.cfg.Device.MaxRecoveryAttempts; attempt++ {
			time.Sleep(backoff)
			dev, err := e.factory(e.cfg, e.log)
			if err != nil {
				e.log.Warnf("device recovery attempt %d/%d failed: %v",
					attempt, e.cfg.Device.MaxRecoveryAttempts, err)
				backoff *= 2
				continue
			}
			if err := dev.Resize(width, height); err != nil {
				e.log.Warnf("device recovery resize failed: %v", err)
				dev.Release()
				backoff *= 2
				continue
			}
			if atlas != nil {
				if err := dev.SetAtlas(atlas); err != nil {
					e.log.Warnf("device recovery atlas upload failed: %v", err)
				}
			}
			e.mu.Lock()
			e.dev = dev
			e.pending = nil
			e.mu.Unlock()
			e.initialized.Store(true)
			e.log.Infof("device recovered after %d attempt(s)", attempt)
			return
		}
		e.log.Errorf("device recovery exhausted; system not initialized")
	}()
}
