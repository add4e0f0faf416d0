// Package compose assembles the final 1000x1000 thumbnail from a background
// and a transparent product cutout.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// Canvas is the fixed output size.
const Canvas = 1000

// Alpha curve knobs: values below the floor become fully transparent to cut
// halo pixels, values at or above the ceiling become fully opaque, and the
// band between is stretched linearly so soft edges keep their gradient.
const (
	alphaFloor   = 95
	alphaCeiling = 250
)

// Thumbnail composites the cutout over the background and returns the final
// PNG. The background is resized to the canvas, the cutout is fit-scaled
// (never upscaled) and centered, and the cutout's alpha channel is refined
// before the masked paste.
func Thumbnail(cutoutPNG, backgroundPNG []byte) ([]byte, error) {
	bgSrc, _, err := image.Decode(bytes.NewReader(backgroundPNG))
	if err != nil {
		return nil, fmt.Errorf("%w: decode background: %v", thumbnail.ErrProcessing, err)
	}
	cutSrc, _, err := image.Decode(bytes.NewReader(cutoutPNG))
	if err != nil {
		return nil, fmt.Errorf("%w: decode cutout: %v", thumbnail.ErrProcessing, err)
	}

	bg := imaging.Resize(bgSrc, Canvas, Canvas, imaging.Lanczos)

	cw := cutSrc.Bounds().Dx()
	ch := cutSrc.Bounds().Dy()
	if cw == 0 || ch == 0 {
		return nil, fmt.Errorf("%w: empty cutout image", thumbnail.ErrProcessing)
	}
	ratio := min(float64(Canvas)/float64(cw), float64(Canvas)/float64(ch), 1.0)
	nw := int(float64(cw) * ratio)
	nh := int(float64(ch) * ratio)

	cut := imaging.Resize(cutSrc, nw, nh, imaging.Lanczos)
	refineAlpha(cut)

	x := (Canvas - nw) / 2
	y := (Canvas - nh) / 2
	out := imaging.Overlay(bg, cut, image.Pt(x, y), 1.0)

	// Flatten: the thumbnail ships opaque.
	flat := image.NewRGBA(image.Rect(0, 0, Canvas, Canvas))
	for py := 0; py < Canvas; py++ {
		for px := 0; px < Canvas; px++ {
			c := out.NRGBAAt(px, py)
			c.A = 255
			flat.Set(px, py, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, fmt.Errorf("%w: encode thumbnail: %v", thumbnail.ErrProcessing, err)
	}
	return buf.Bytes(), nil
}

// refineAlpha applies the three-point curve to the cutout's alpha channel in
// place.
func refineAlpha(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = refineAlphaValue(img.Pix[i])
	}
}

func refineAlphaValue(v uint8) uint8 {
	switch {
	case v < alphaFloor:
		return 0
	case v >= alphaCeiling:
		return 255
	default:
		return uint8(int(v-alphaFloor) * 255 / (alphaCeiling - alphaFloor))
	}
}
