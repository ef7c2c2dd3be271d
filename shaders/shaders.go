// Package shaders embeds the WGSL kernel sources for the wgpu backend.
// Each kernel mirrors one CPU kernel of the software device; the particle
// record layout and the hash RNG must stay bit-identical between the two.
package shaders

import (
	_ "embed"
)

//go:embed clear.wgsl
var ClearWGSL string

//go:embed spawn.wgsl
var SpawnWGSL string

//go:embed update.wgsl
var UpdateWGSL string

//go:embed cull.wgsl
var CullWGSL string

//go:embed composite.wgsl
var CompositeWGSL string

//go:embed present.wgsl
var PresentWGSL string
