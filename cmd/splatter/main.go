package main

import (
	"flag"
	"math"
	"runtime"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/splatterlab/splatter"
	"github.com/splatterlab/splatter/gpu"
)

func init() {
	runtime.LockOSThread()
}

// pointerProducer decodes glfw cursor drags into engine input events. It is
// the simplest possible producer: one stream, one session, events emitted
// at the cursor position while a button is held.
type pointerProducer struct {
	engine  *splatter.Engine
	session int32

	down  bool
	lastX float64
	lastY float64
	hue   float64
}

func (p *pointerProducer) Name() string { return "glfw-pointer" }
func (p *pointerProducer) Close() error { return nil }

func (p *pointerProducer) press(x, y float64) {
	p.down = true
	p.lastX = x
	p.lastY = y
	p.emit(x, y)
}

func (p *pointerProducer) release() { p.down = false }

func (p *pointerProducer) move(x, y float64) {
	if !p.down {
		return
	}
	// Interpolate along the drag so fast strokes stay continuous.
	dx := x - p.lastX
	dy := y - p.lastY
	dist := math.Hypot(dx, dy)
	steps := int(dist / 3)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p.emit(p.lastX+dx*t, p.lastY+dy*t)
	}
	p.lastX = x
	p.lastY = y
}

func (p *pointerProducer) emit(x, y float64) {
	p.hue += 0.002
	r, g, b := hueToRGB(p.hue)
	p.engine.ProcessInputEvents([]splatter.InputEvent{{
		Position:     mgl32.Vec2{float32(x), float32(y)},
		Color:        mgl32.Vec4{r, g, b, 1}, // premultiplied, alpha 1
		Size:         24,
		Timestamp:    glfw.GetTime(),
		SessionID:    p.session,
		TextureIndex: int32(p.hue*13) & (splatter.AtlasTileCount - 1),
	}})
}

func hueToRGB(h float64) (float32, float32, float32) {
	h = h - math.Floor(h)
	r := 0.5 + 0.5*math.Cos(2*math.Pi*h)
	g := 0.5 + 0.5*math.Cos(2*math.Pi*(h+1.0/3))
	b := 0.5 + 0.5*math.Cos(2*math.Pi*(h+2.0/3))
	return float32(r), float32(g), float32(b)
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	atlasPath := flag.String("atlas", "", "Path to an 8-tile brush atlas image")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := splatter.NewDefaultLogger("splatter", *debug)

	cfg, err := splatter.LoadConfig(*configPath)
	if err != nil {
		logger.Warnf("config: %v (using defaults)", err)
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Canvas.Width, cfg.Canvas.Height, "Splatter", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		panic(err)
	}
	wgpuDevice, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "Splatter Device"})
	if err != nil {
		panic(err)
	}

	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(cfg.Canvas.Width),
		Height:      uint32(cfg.Canvas.Height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, wgpuDevice, &surfaceConfig)

	// The engine shares the surface's device so the present pass samples
	// the color target directly.
	factory := func(cfg splatter.Config, log splatter.Logger) (splatter.Device, error) {
		return gpu.NewWithDevice(wgpuDevice, cfg, log)
	}
	engine, err := splatter.NewEngine(cfg, logger, factory)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	dev := engine.Device().(*gpu.Device)
	present, err := dev.CreatePresentPipeline(surfaceConfig.Format)
	if err != nil {
		panic(err)
	}
	defer func() { present.Release() }()

	atlas := splatter.NewProceduralAtlas(64)
	if *atlasPath != "" {
		loaded, err := splatter.LoadAtlas(*atlasPath, 64)
		if err != nil {
			logger.Warnf("atlas: %v (using procedural brushes)", err)
		} else {
			atlas = loaded
		}
	}
	engine.SetAtlas(atlas)

	streams := splatter.NewStreamRegistry(30 * time.Second)
	producer := &pointerProducer{
		engine:  engine,
		session: streams.Touch(uuid.New()),
	}
	defer producer.Close()

	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		x, y := w.GetCursorPos()
		if action == glfw.Press {
			producer.press(x, y)
		} else if action == glfw.Release {
			producer.release()
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		producer.move(x, y)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyC:
			engine.ClearAll()
		case glfw.KeyS:
			stats := engine.Statistics()
			logger.Infof("alive=%d free=%d frame=%.2fms avg=%.2fms",
				stats.Alive, stats.FreelistCount, stats.LastFrameMs, stats.AvgFrameMs)
		}
	})
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width < 1 || height < 1 {
			return
		}
		surfaceConfig.Width = uint32(width)
		surfaceConfig.Height = uint32(height)
		surface.Configure(adapter, wgpuDevice, &surfaceConfig)
		engine.Resize(width, height)
		// Resizing recreates the color target, so the blit bind group must
		// be rebuilt against the new buffer.
		if np, err := dev.CreatePresentPipeline(surfaceConfig.Format); err != nil {
			logger.Errorf("present pipeline: %v", err)
		} else {
			present.Release()
			present = np
		}
	})

	last := glfw.GetTime()
	statTick := 0
	for !window.ShouldClose() {
		glfw.PollEvents()

		now := glfw.GetTime()
		dt := float32(now - last)
		last = now

		engine.Update(dt)
		engine.Render()

		texture, err := surface.GetCurrentTexture()
		if err != nil {
			logger.Warnf("surface: %v", err)
			continue
		}
		view, err := texture.CreateView(nil)
		if err != nil {
			logger.Warnf("surface view: %v", err)
			continue
		}
		encoder, err := wgpuDevice.CreateCommandEncoder(nil)
		if err != nil {
			logger.Warnf("encoder: %v", err)
			view.Release()
			continue
		}
		present.Blit(encoder, view)
		cmd, err := encoder.Finish(nil)
		if err == nil {
			wgpuDevice.GetQueue().Submit(cmd)
			surface.Present()
		}
		view.Release()

		statTick++
		if *debug && statTick%300 == 0 {
			stats := engine.Statistics()
			logger.Debugf("alive=%d free=%d frame=%.2fms",
				stats.Alive, stats.FreelistCount, stats.LastFrameMs)
		}
	}
}
