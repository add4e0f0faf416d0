package concept

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

func TestParseHex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#ffcc00", color.NRGBA{R: 0xff, G: 0xcc, B: 0x00, A: 255}, true},
		{"e8f4f8", color.NRGBA{R: 0xe8, G: 0xf4, B: 0xf8, A: 255}, true},
		{"#FFCC00", color.NRGBA{R: 0xff, G: 0xcc, B: 0x00, A: 255}, true},
		{"#fff", color.NRGBA{}, false},
		{"#zzzzzz", color.NRGBA{}, false},
		{"", color.NRGBA{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseHex(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func decodeGradient(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		nrgba = image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				nrgba.Set(x, y, img.At(x, y))
			}
		}
	}
	return nrgba
}

func TestGradientFromTwoCoreColors(t *testing.T) {
	t.Parallel()

	data := Gradient([]string{"#ff0000", "#0000ff"}, nil)
	require.NotEmpty(t, data)

	img := decodeGradient(t, data)
	assert.Equal(t, 1000, img.Bounds().Dx())
	assert.Equal(t, 1000, img.Bounds().Dy())

	top := img.NRGBAAt(500, 0)
	bottom := img.NRGBAAt(500, 999)
	assert.Equal(t, uint8(255), top.R)
	assert.Equal(t, uint8(0), top.B)
	assert.Equal(t, uint8(0), bottom.R)
	assert.Equal(t, uint8(255), bottom.B)
}

func TestGradientSingleColorLightensAndDarkens(t *testing.T) {
	t.Parallel()

	data := Gradient([]string{"#808080"}, nil)
	require.NotEmpty(t, data)

	img := decodeGradient(t, data)
	top := img.NRGBAAt(0, 0)
	bottom := img.NRGBAAt(0, 999)
	assert.Equal(t, uint8(0x80+60), top.R)
	assert.Equal(t, uint8(0x80-30), bottom.R)
}

func TestGradientDefaultsWithoutInputs(t *testing.T) {
	t.Parallel()

	data := Gradient(nil, nil)
	require.NotEmpty(t, data)

	img := decodeGradient(t, data)
	assert.Equal(t, defaultGradientTop, img.NRGBAAt(10, 0))
	assert.Equal(t, defaultGradientBottom, img.NRGBAAt(10, 999))
}

func TestGradientSamplesCutoutColors(t *testing.T) {
	t.Parallel()

	// Solid mid-tone product image; dominant sampling should pick it up and
	// the gradient should lighten it at the top.
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	fill := color.NRGBA{R: 100, G: 120, B: 140, A: 255}
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			src.SetNRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	data := Gradient(nil, buf.Bytes())
	require.NotEmpty(t, data)

	img := decodeGradient(t, data)
	top := img.NRGBAAt(0, 0)
	assert.NotEqual(t, defaultGradientTop, top, "cutout colors should override the neutral default")
	assert.Greater(t, int(top.R), 100, "top endpoint should be lightened")
}

func TestDominantColorsSkipsExtremes(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			switch {
			case y < 20:
				src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255}) // near-white, skipped
			case y < 40:
				src.SetNRGBA(x, y, color.NRGBA{R: 200, G: 50, B: 50, A: 255})
			default:
				src.SetNRGBA(x, y, color.NRGBA{R: 2, G: 2, B: 2, A: 255}) // near-black, skipped
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	got := dominantColors(buf.Bytes(), 2)
	require.NotEmpty(t, got)
	assert.Equal(t, uint8(192), got[0].R, "reddish bucket should dominate")
}

func TestBackgroundPrompt(t *testing.T) {
	t.Parallel()

	p := backgroundPrompt(thumbnail.ProductConcept{
		BackgroundConcept: "은은한 파스텔 그라데이션",
		CoreColors:        []string{"#ffcc00", "#e8f4f8"},
	})
	assert.Contains(t, p, "은은한 파스텔 그라데이션")
	assert.Contains(t, p, "#ffcc00, #e8f4f8")

	empty := backgroundPrompt(thumbnail.ProductConcept{})
	assert.Contains(t, empty, "soft neutral")
	assert.Contains(t, empty, "미니멀하고 깔끔한 광고 배경")
}
