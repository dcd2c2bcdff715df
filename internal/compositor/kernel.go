package compositor

import (
	"image"
	"image/color"
	"math"
)

// Kernel is the color-key fragment program. Both the sampled pixel and the
// key color are converted to BT.601 chroma; a chroma-only distance mapped
// through a smooth ramp between the inner and outer thresholds yields alpha,
// residual key spill on visible pixels is suppressed proportionally to
// (1 - alpha), and the result is composited over a solid background.
type Kernel struct {
	KeyColor       color.RGBA
	Background     color.RGBA
	InnerThreshold float64 // chroma distance at or below which alpha = 0
	OuterThreshold float64 // chroma distance at or above which alpha = 1
	Spill          float64 // 0..1 strength of spill suppression
	Mirror         bool
}

// chroma returns the normalized BT.601 chroma components of c in [0,1].
func chroma(c color.RGBA) (cb, cr float64) {
	r := float64(c.R)
	g := float64(c.G)
	b := float64(c.B)
	cb = (-0.168736*r - 0.331264*g + 0.5*b + 128) / 255
	cr = (0.5*r - 0.418688*g - 0.081312*b + 128) / 255
	return cb, cr
}

func luma(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// ChromaDistance returns the chroma-plane distance between two colors,
// ignoring luma entirely so shadows on the key screen still key out.
func ChromaDistance(a, b color.RGBA) float64 {
	acb, acr := chroma(a)
	bcb, bcr := chroma(b)
	dcb := acb - bcb
	dcr := acr - bcr
	return math.Sqrt(dcb*dcb + dcr*dcr)
}

// Alpha maps the pixel's chroma distance to the key color through the
// smoothstep ramp: 0 at or below the inner threshold, 1 at or above the
// outer, monotonically non-decreasing in between.
func (k Kernel) Alpha(c color.RGBA) float64 {
	d := ChromaDistance(c, k.KeyColor)
	switch {
	case d <= k.InnerThreshold:
		return 0
	case d >= k.OuterThreshold:
		return 1
	}
	t := (d - k.InnerThreshold) / (k.OuterThreshold - k.InnerThreshold)
	return t * t * (3 - 2*t)
}

// ShadePixel runs the fragment program for one source pixel.
func (k Kernel) ShadePixel(src color.RGBA) color.RGBA {
	a := k.Alpha(src)
	if a == 0 {
		return k.Background
	}

	// Spill suppression: pull the visible pixel toward its own luma in
	// proportion to how close it sits to the key color.
	suppress := k.Spill * (1 - a)
	y := luma(src)
	r := float64(src.R) + (y-float64(src.R))*suppress
	g := float64(src.G) + (y-float64(src.G))*suppress
	b := float64(src.B) + (y-float64(src.B))*suppress

	// Composite over the solid background.
	br := float64(k.Background.R)
	bg := float64(k.Background.G)
	bb := float64(k.Background.B)
	return color.RGBA{
		R: clamp8(r*a + br*(1-a)),
		G: clamp8(g*a + bg*(1-a)),
		B: clamp8(b*a + bb*(1-a)),
		A: 255,
	}
}

// Shade runs the fragment program over every pixel of src into dst. The two
// images must have identical bounds. Mirroring flips the horizontal axis.
func (k Kernel) Shade(dst, src *image.RGBA) {
	bounds := src.Bounds()
	w := bounds.Dx()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sx := x
			if k.Mirror {
				sx = bounds.Min.X + (w - 1 - (x - bounds.Min.X))
			}
			dst.SetRGBA(x, y, k.ShadePixel(src.RGBAAt(sx, y)))
		}
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
