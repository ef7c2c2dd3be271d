package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/splatterlab/splatter/shaders"
)

// PresentPipeline blits the paint color target onto a window surface with a
// fullscreen triangle. It is boundary glue for the demo binary; the engine
// core never depends on a surface.
type PresentPipeline struct {
	pipeline  *wgpu.RenderPipeline
	bindGroup *wgpu.BindGroup
}

// CreatePresentPipeline builds the blit pipeline for a surface format. Must
// be recreated after the device resizes its targets.
func (d *Device) CreatePresentPipeline(format wgpu.TextureFormat) (*PresentPipeline, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Present VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.PresentWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("compile present shader: %w", err)
	}
	defer module.Release()

	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Present Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					Blend:     nil,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create present pipeline: %w", err)
	}

	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			buf(0, d.paramsBuf),
			buf(1, d.colorBuf),
		},
	})
	if err != nil {
		pipeline.Release()
		return nil, fmt.Errorf("present bind group: %w", err)
	}

	return &PresentPipeline{pipeline: pipeline, bindGroup: bindGroup}, nil
}

// Blit records the fullscreen draw into a render pass targeting view.
func (p *PresentPipeline) Blit(encoder *wgpu.CommandEncoder, view *wgpu.TextureView) {
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			},
		},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()
}

// Release frees the pipeline resources.
func (p *PresentPipeline) Release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}
