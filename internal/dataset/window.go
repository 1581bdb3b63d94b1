package dataset

import (
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"
)

// Window is the pixel-space origin of a square tile.
type Window struct {
	X, Y int
}

func (w Window) Bound(size int) orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(w.X), float64(w.Y)},
		Max: orb.Point{float64(w.X + size), float64(w.Y + size)},
	}
}

// Windows tiles a width x height grid with non-overlapping size x size
// windows, row by row from the origin. Partial tiles at the right and bottom
// edges are left out.
func Windows(width, height, size int) []Window {
	if size <= 0 {
		return nil
	}
	var windows []Window
	for y := 0; y+size <= height; y += size {
		for x := 0; x+size <= width; x += size {
			windows = append(windows, Window{X: x, Y: y})
		}
	}
	return windows
}

type Mask struct {
	Width, Height int
	Data          []bool
}

// Coverage is the fraction of true pixels inside the window.
func (m Mask) Coverage(w Window, size int) float64 {
	if size <= 0 {
		return 0
	}
	covered := 0
	for y := w.Y; y < w.Y+size; y++ {
		row := m.Data[y*m.Width : (y+1)*m.Width]
		for x := w.X; x < w.X+size; x++ {
			if row[x] {
				covered++
			}
		}
	}
	return float64(covered) / float64(size*size)
}

// Candidates returns the windows whose coverage is strictly above threshold.
func Candidates(m Mask, size int, threshold float64) []Window {
	var candidates []Window
	for _, w := range Windows(m.Width, m.Height, size) {
		if m.Coverage(w, size) > threshold {
			candidates = append(candidates, w)
		}
	}
	return candidates
}

// Composite is a three channel image stored band-sequentially. R, G and B
// map straight to the red, green and blue channels of the saved patch, so a
// red/green/blue band stack yields a true-colour image. Earlier exports of
// this dataset wrote the same stack in blue/green/red order, which put the
// red band in the blue channel.
type Composite struct {
	Width, Height int
	R, G, B       []float64
}

func (c Composite) Extent() orb.Bound {
	return orb.Bound{
		Min: orb.Point{0, 0},
		Max: orb.Point{float64(c.Width), float64(c.Height)},
	}
}

type Tile struct {
	Size    int
	R, G, B []float64
}

// Crop copies the window out of the composite. It reports false when the
// window does not lie fully inside the composite.
func (c Composite) Crop(w Window, size int) (Tile, bool) {
	if size <= 0 || w.X < 0 || w.Y < 0 {
		return Tile{}, false
	}
	bound := w.Bound(size)
	extent := c.Extent()
	if !extent.Contains(bound.Min) || !extent.Contains(bound.Max) {
		return Tile{}, false
	}
	if len(c.R) < c.Width*c.Height || len(c.G) < c.Width*c.Height || len(c.B) < c.Width*c.Height {
		return Tile{}, false
	}

	tile := Tile{
		Size: size,
		R:    make([]float64, 0, size*size),
		G:    make([]float64, 0, size*size),
		B:    make([]float64, 0, size*size),
	}
	for y := w.Y; y < w.Y+size; y++ {
		start := y*c.Width + w.X
		tile.R = append(tile.R, c.R[start:start+size]...)
		tile.G = append(tile.G, c.G[start:start+size]...)
		tile.B = append(tile.B, c.B[start:start+size]...)
	}
	return tile, true
}

// Normalize stretches the tile so that its smallest sample maps to 0 and its
// largest to 255, across all three channels at once. A flat tile is all 0.
func (t Tile) Normalize() *image.NRGBA {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, channel := range [][]float64{t.R, t.G, t.B} {
		for _, v := range channel {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	scale := 0.0
	if hi-lo > 0 {
		scale = 255 / (hi - lo)
	}

	img := image.NewNRGBA(image.Rect(0, 0, t.Size, t.Size))
	for i := 0; i < t.Size*t.Size; i++ {
		img.SetNRGBA(i%t.Size, i/t.Size, color.NRGBA{
			R: quantize(t.R[i], lo, scale),
			G: quantize(t.G[i], lo, scale),
			B: quantize(t.B[i], lo, scale),
			A: 255,
		})
	}
	return img
}

func quantize(v, lo, scale float64) uint8 {
	if math.IsNaN(v) || scale == 0 {
		return 0
	}
	n := math.Round((v - lo) * scale)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}
