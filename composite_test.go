package splatter

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// placeParticle writes an opaque 4px disk directly into one slot so blend
// tests control position and color exactly, without spawn jitter.
func placeParticle(dev *SoftwareDevice, slot int, x, y float32, color mgl32.Vec4, spawnID uint64) {
	dev.particles[slot] = Particle{
		Position:    mgl32.Vec3{x, y, 0},
		Color:       color,
		Size:        4,
		Age:         0,
		MaxLifetime: 10,
		RecencyTag:  PackRecency(spawnID, uint32(slot), dev.Capacity()),
	}
}

func pixel(dev *SoftwareDevice, x, y int) mgl32.Vec4 {
	o := (y*dev.Width() + x) * 4
	buf := dev.ColorBuffer()
	return mgl32.Vec4{buf[o], buf[o+1], buf[o+2], buf[o+3]}
}

func TestCompositeNewerSpawnWins(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)

	// Lower slot index but later dispatch: the dispatch counter, not the
	// slot order, decides which color a contested pixel ends up with.
	placeParticle(dev, 3, 8, 8, mgl32.Vec4{1, 0, 0, 1}, 1)
	placeParticle(dev, 0, 8, 8, mgl32.Vec4{0, 1, 0, 1}, 2)

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	got := pixel(dev, 8, 8)
	want := mgl32.Vec4{0, 1, 0, 1}
	if got != want {
		t.Errorf("contested pixel = %v, want later dispatch color %v", got, want)
	}
}

func TestCompositeOlderParticleLosesToYounger(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)

	placeParticle(dev, 0, 8, 8, mgl32.Vec4{1, 0, 0, 1}, 1)
	placeParticle(dev, 1, 8, 8, mgl32.Vec4{0, 0, 1, 1}, 1)
	dev.particles[0].Age = 5 // same dispatch, but slot 0 has aged more

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	got := pixel(dev, 8, 8)
	if got.Z() != 1 {
		t.Errorf("contested pixel = %v, want the younger blue particle on top", got)
	}
}

func TestCompositeSemiTransparentBlend(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)

	// Premultiplied half-alpha red over an opaque white base.
	placeParticle(dev, 0, 8, 8, mgl32.Vec4{1, 1, 1, 1}, 1)
	placeParticle(dev, 1, 8, 8, mgl32.Vec4{0.5, 0, 0, 0.5}, 2)

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	got := pixel(dev, 8, 8)
	want := mgl32.Vec4{1, 0.5, 0.5, 1} // src + (1-src.a)*dst per channel
	for c := 0; c < 4; c++ {
		if diff := got[c] - want[c]; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("blended pixel = %v, want %v", got, want)
		}
	}
}

func TestCompositeClipsToCanvas(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 8, 8), nil)

	// Centers outside every edge; rasterization must not index out of
	// bounds and must leave the interior untouched.
	placeParticle(dev, 0, -1, -1, mgl32.Vec4{1, 0, 0, 1}, 1)
	placeParticle(dev, 1, 9, 9, mgl32.Vec4{0, 1, 0, 1}, 1)

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	if got := pixel(dev, 4, 4); got != (mgl32.Vec4{}) {
		t.Errorf("interior pixel = %v, want untouched", got)
	}
}

func TestCompositeDiskFootprintWithoutAtlas(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)
	placeParticle(dev, 0, 8, 8, mgl32.Vec4{1, 0, 0, 1}, 1)
	dev.particles[0].Size = 8

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	if got := pixel(dev, 8, 8); got.X() != 1 {
		t.Errorf("center pixel = %v, want painted", got)
	}
	// Bounding-box corner is outside the disk.
	if got := pixel(dev, 4, 4); got != (mgl32.Vec4{}) {
		t.Errorf("corner pixel = %v, want outside the disk footprint", got)
	}
}

func TestCompositeAtlasTintsTexels(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)
	if err := dev.SetAtlas(NewProceduralAtlas(16)); err != nil {
		t.Fatal(err)
	}
	placeParticle(dev, 0, 8, 8, mgl32.Vec4{0, 1, 0, 1}, 1)
	dev.particles[0].Size = 8

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	got := pixel(dev, 8, 8)
	if got.Y() <= 0 {
		t.Errorf("center pixel = %v, want green tint from the sprite", got)
	}
	if got.X() != 0 {
		t.Errorf("center pixel = %v, want no red after tinting", got)
	}
}

func TestCompositeSkipsDeadParticles(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)
	placeParticle(dev, 0, 8, 8, mgl32.Vec4{1, 0, 0, 1}, 1)
	dev.particles[0].Color[3] = 0 // faded out, still in the store until cull

	if err := dev.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Composite(); err != nil {
		t.Fatal(err)
	}

	if got := pixel(dev, 8, 8); got != (mgl32.Vec4{}) {
		t.Errorf("pixel = %v, want nothing from a dead particle", got)
	}
}
