package compositor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKernel = Kernel{
	KeyColor:       color.RGBA{G: 255, A: 255},
	Background:     color.RGBA{R: 10, G: 10, B: 10, A: 255},
	InnerThreshold: 0.08,
	OuterThreshold: 0.22,
	Spill:          0.5,
}

// blend interpolates from the key color toward a far color, producing pixels
// at increasing chroma distance.
func blend(from, to color.RGBA, t float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
	}
	return color.RGBA{R: mix(from.R, to.R), G: mix(from.G, to.G), B: mix(from.B, to.B), A: 255}
}

func TestAlphaInsideInnerThresholdIsZero(t *testing.T) {
	// The key color itself and a darker shade of it: luma differs, chroma
	// barely moves, both must key out fully.
	require.Equal(t, 0.0, testKernel.Alpha(testKernel.KeyColor))

	shadow := color.RGBA{G: 230, A: 255}
	require.Less(t, ChromaDistance(shadow, testKernel.KeyColor), testKernel.InnerThreshold)
	require.Equal(t, 0.0, testKernel.Alpha(shadow))
}

func TestAlphaBeyondOuterThresholdIsOne(t *testing.T) {
	for _, c := range []color.RGBA{
		{R: 255, A: 255},
		{B: 255, A: 255},
		{R: 255, B: 255, A: 255},
	} {
		require.GreaterOrEqual(t, ChromaDistance(c, testKernel.KeyColor), testKernel.OuterThreshold)
		require.Equal(t, 1.0, testKernel.Alpha(c))
	}
}

func TestAlphaMonotonicBetweenThresholds(t *testing.T) {
	far := color.RGBA{R: 255, A: 255}
	prevAlpha := -1.0
	prevDist := -1.0
	for i := 0; i <= 200; i++ {
		c := blend(testKernel.KeyColor, far, float64(i)/200)
		d := ChromaDistance(c, testKernel.KeyColor)
		a := testKernel.Alpha(c)
		if d >= prevDist {
			require.GreaterOrEqual(t, a, prevAlpha, "alpha must be non-decreasing in chroma distance (d=%v)", d)
		}
		prevDist = d
		prevAlpha = a
	}
}

func TestShadePixelCompositesBackground(t *testing.T) {
	require.Equal(t, testKernel.Background, testKernel.ShadePixel(testKernel.KeyColor))

	opaque := color.RGBA{R: 255, A: 255}
	got := testKernel.ShadePixel(opaque)
	require.Equal(t, uint8(255), got.R)
	require.Equal(t, uint8(255), got.A)
}

func TestShadeMirrorsHorizontally(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 1))
	left := color.RGBA{R: 255, A: 255}
	key := testKernel.KeyColor
	src.SetRGBA(0, 0, left)
	for x := 1; x < 4; x++ {
		src.SetRGBA(x, 0, key)
	}

	dst := image.NewRGBA(src.Bounds())
	k := testKernel
	k.Mirror = true
	k.Shade(dst, src)

	require.Equal(t, uint8(255), dst.RGBAAt(3, 0).R, "left-edge subject must land on the right edge")
	require.Equal(t, testKernel.Background, dst.RGBAAt(0, 0))
}

func TestSpillSuppressionDesaturatesEdges(t *testing.T) {
	// A pixel just past the inner threshold keeps some green tint; spill
	// suppression must pull it toward gray compared to the raw pixel.
	far := color.RGBA{R: 255, A: 255}
	edge := blend(testKernel.KeyColor, far, 0.15)
	a := testKernel.Alpha(edge)
	require.Greater(t, a, 0.0)
	require.Less(t, a, 1.0)

	noSpill := testKernel
	noSpill.Spill = 0
	withSpill := testKernel.ShadePixel(edge)
	without := noSpill.ShadePixel(edge)
	require.Less(t, int(withSpill.G), int(without.G), "suppression must reduce the key tint")
}
