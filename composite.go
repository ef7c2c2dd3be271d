package splatter

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Composite implements Device: rasterizes every live particle into the
// color target with a depth-gated premultiplied source-over blend. The
// synthetic depth (age plus recency tag) makes newer paint win every pixel
// it covers, approximating painter's order without sorting.
//
// The GPU kernel runs one unsynchronized thread per particle and accepts
// the resulting read-test-write race on shared pixels. Here the canvas is
// sharded into scanline bands instead: each band is owned by one goroutine
// that walks all particles in slot order, so every pixel has exactly one
// writer and the output is deterministic.
func (d *SoftwareDevice) Composite() error {
	atlas := d.atlas.Load()
	d.shard(d.height, func(bandLo, bandHi int) {
		for i := range d.particles {
			p := &d.particles[i]
			if !p.Alive() {
				continue
			}
			d.compositeParticle(p, atlas, bandLo, bandHi)
		}
	})
	return nil
}

func (d *SoftwareDevice) compositeParticle(p *Particle, atlas *Atlas, bandLo, bandHi int) {
	cx := p.Position.X()
	cy := p.Position.Y()
	half := p.Size / 2
	if half <= 0 {
		return
	}

	x0 := int(cx - half)
	x1 := int(cx+half) + 1
	y0 := int(cy - half)
	y1 := int(cy+half) + 1
	if x0 < 0 {
		x0 = 0
	}
	if x1 > d.width {
		x1 = d.width
	}
	if y0 < bandLo {
		y0 = bandLo
	}
	if y1 > bandHi {
		y1 = bandHi
	}
	if x0 >= x1 || y0 >= y1 {
		return
	}

	z := ParticleZ(p.Age, p.RecencyTag)
	invSide := 1 / (2 * half)

	for py := y0; py < y1; py++ {
		row := py * d.width
		for px := x0; px < x1; px++ {
			fx := float32(px) + 0.5 - cx
			fy := float32(py) + 0.5 - cy

			var src mgl32.Vec4
			if atlas != nil {
				// Square sprite footprint tinted by the particle color.
				u := (fx + half) * invSide
				v := (fy + half) * invSide
				texel := atlas.Sample(p.TextureIndex, u, v)
				for c := 0; c < 4; c++ {
					src[c] = texel[c] * p.Color[c]
				}
			} else {
				if fx*fx+fy*fy > half*half {
					continue
				}
				src = p.Color
			}
			if src[3] <= 0 {
				// Transparent sprite texels must not occlude.
				continue
			}

			idx := row + px
			if z >= d.depth[idx] {
				continue
			}
			o := idx * 4
			inv := 1 - src[3]
			d.color[o+0] = src[0] + inv*d.color[o+0]
			d.color[o+1] = src[1] + inv*d.color[o+1]
			d.color[o+2] = src[2] + inv*d.color[o+2]
			d.color[o+3] = src[3] + inv*d.color[o+3]
			d.depth[idx] = z
		}
	}
}
