package splatter

import (
	"fmt"
	"image"
	_ "image/png"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
)

// Atlas is an immutable brush sprite sheet: AtlasTileCount equal square
// tiles in one horizontal row. Texels are stored premultiplied so the
// compositor can blend samples directly. Loaded once at startup; absence of
// an atlas makes the compositor fall back to solid disks.
type Atlas struct {
	tileSize int
	texels   []float32 // tileSize*AtlasTileCount * tileSize * RGBA
}

// LoadAtlas reads an 8-tile horizontal strip image, resamples it so each
// tile is tileSize square, and premultiplies the texels.
func LoadAtlas(path string, tileSize int) (*Atlas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open atlas %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode atlas %s: %w", path, err)
	}
	return NewAtlasFromImage(img, tileSize)
}

// NewAtlasFromImage builds an atlas from a decoded strip image.
func NewAtlasFromImage(img image.Image, tileSize int) (*Atlas, error) {
	if tileSize < 1 {
		tileSize = 1
	}
	b := img.Bounds()
	if b.Dx() < AtlasTileCount || b.Dy() < 1 {
		return nil, fmt.Errorf("atlas image %dx%d too small for %d tiles", b.Dx(), b.Dy(), AtlasTileCount)
	}

	// NRGBA keeps the channels straight (not premultiplied) so the
	// premultiply below happens exactly once.
	w := tileSize * AtlasTileCount
	dst := image.NewNRGBA(image.Rect(0, 0, w, tileSize))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	a := &Atlas{
		tileSize: tileSize,
		texels:   make([]float32, w*tileSize*4),
	}
	for y := 0; y < tileSize; y++ {
		for x := 0; x < w; x++ {
			i := dst.PixOffset(x, y)
			alpha := float32(dst.Pix[i+3]) / 255
			o := (y*w + x) * 4
			a.texels[o+0] = float32(dst.Pix[i+0]) / 255 * alpha
			a.texels[o+1] = float32(dst.Pix[i+1]) / 255 * alpha
			a.texels[o+2] = float32(dst.Pix[i+2]) / 255 * alpha
			a.texels[o+3] = alpha
		}
	}
	return a, nil
}

// NewProceduralAtlas generates a soft-disk brush in every tile, each tile a
// little softer than the last. Used when no atlas image is supplied but
// sprite rendering is still wanted.
func NewProceduralAtlas(tileSize int) *Atlas {
	if tileSize < 1 {
		tileSize = 1
	}
	w := tileSize * AtlasTileCount
	a := &Atlas{
		tileSize: tileSize,
		texels:   make([]float32, w*tileSize*4),
	}
	for tile := 0; tile < AtlasTileCount; tile++ {
		hardness := 1.0 - float64(tile)/float64(AtlasTileCount)
		cx := float64(tileSize-1) / 2
		r := float64(tileSize) / 2
		for y := 0; y < tileSize; y++ {
			for x := 0; x < tileSize; x++ {
				dx := (float64(x) - cx) / r
				dy := (float64(y) - cx) / r
				d := math.Sqrt(dx*dx + dy*dy)
				alpha := 0.0
				if d < 1 {
					alpha = math.Pow(1-d, 1.0/(0.25+hardness))
				}
				o := (y*w + tile*tileSize + x) * 4
				a.texels[o+0] = float32(alpha)
				a.texels[o+1] = float32(alpha)
				a.texels[o+2] = float32(alpha)
				a.texels[o+3] = float32(alpha)
			}
		}
	}
	return a
}

// TileSize returns the square tile edge in texels.
func (a *Atlas) TileSize() int { return a.tileSize }

// Texels returns the raw premultiplied RGBA texel row, tileSize high and
// tileSize*AtlasTileCount wide. Shared, do not mutate.
func (a *Atlas) Texels() []float32 { return a.texels }

// Sample reads the nearest texel of a tile at normalized (u, v) in [0,1),
// returning premultiplied RGBA. The tile index wraps into the 8-tile strip.
func (a *Atlas) Sample(tile int32, u, v float32) mgl32.Vec4 {
	t := int(tile) & (AtlasTileCount - 1)
	x := int(u * float32(a.tileSize))
	y := int(v * float32(a.tileSize))
	if x < 0 {
		x = 0
	} else if x >= a.tileSize {
		x = a.tileSize - 1
	}
	if y < 0 {
		y = 0
	} else if y >= a.tileSize {
		y = a.tileSize - 1
	}
	o := (y*a.tileSize*AtlasTileCount + t*a.tileSize + x) * 4
	return mgl32.Vec4{a.texels[o], a.texels[o+1], a.texels[o+2], a.texels[o+3]}
}
