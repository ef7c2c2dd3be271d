package splatter

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProceduralAtlasShape(t *testing.T) {
	a := NewProceduralAtlas(16)
	assert.Equal(t, 16, a.TileSize())
	assert.Len(t, a.Texels(), 16*AtlasTileCount*16*4)

	// The brush is a centered soft disk: opaque-ish in the middle,
	// transparent at the tile corner.
	center := a.Sample(0, 0.5, 0.5)
	corner := a.Sample(0, 0.0, 0.0)
	assert.Greater(t, center[3], float32(0.5))
	assert.Equal(t, float32(0), corner[3])

	// Later tiles are softer, so their mid-radius alpha drops off.
	hardMid := a.Sample(0, 0.75, 0.5)
	softMid := a.Sample(7, 0.75, 0.5)
	assert.Greater(t, hardMid[3], softMid[3])
}

func TestSampleWrapsAndClamps(t *testing.T) {
	a := NewProceduralAtlas(8)

	assert.Equal(t, a.Sample(1, 0.5, 0.5), a.Sample(9, 0.5, 0.5), "tile index wraps modulo the strip")
	assert.Equal(t, a.Sample(0, 0, 0), a.Sample(0, -1, -1), "coordinates clamp to the tile edge")
	assert.Equal(t, a.Sample(0, 0.999, 0.999), a.Sample(0, 2, 2))
}

func TestNewAtlasFromImagePremultiplies(t *testing.T) {
	// A solid half-transparent red strip; stored texels must carry alpha
	// multiplied into the color channels.
	src := image.NewNRGBA(image.Rect(0, 0, 8*AtlasTileCount, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8*AtlasTileCount; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, A: 128})
		}
	}

	a, err := NewAtlasFromImage(src, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, a.TileSize())

	texel := a.Sample(0, 0.5, 0.5)
	assert.InDelta(t, 0.5, texel[3], 0.02)
	assert.InDelta(t, float64(texel[3]), texel[0], 0.02, "red is premultiplied by alpha")
	assert.InDelta(t, 0, texel[1], 0.02)
}

func TestNewAtlasFromImageRejectsTinyImages(t *testing.T) {
	_, err := NewAtlasFromImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 16)
	assert.Error(t, err)
}
