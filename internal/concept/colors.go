package concept

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/disintegration/imaging"
)

const gradientSide = 1000

// Default gradient endpoints when neither the concept colors nor the cutout
// yield anything usable.
var (
	defaultGradientTop    = color.NRGBA{R: 252, G: 250, B: 255, A: 255}
	defaultGradientBottom = color.NRGBA{R: 240, G: 242, B: 248, A: 255}
)

// Gradient renders a 1000x1000 vertical gradient PNG from the concept's core
// colors, falling back to colors sampled from the cutout, then to a fixed
// neutral pair. It never fails; this is the last line of defense when image
// generation is unavailable.
func Gradient(coreColors []string, cutoutPNG []byte) []byte {
	top, bottom := gradientEndpoints(coreColors, cutoutPNG)

	img := image.NewNRGBA(image.Rect(0, 0, gradientSide, gradientSide))
	for y := 0; y < gradientSide; y++ {
		t := float64(y) / float64(gradientSide-1)
		c := lerpColor(top, bottom, t)
		for x := 0; x < gradientSide; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func gradientEndpoints(coreColors []string, cutoutPNG []byte) (color.NRGBA, color.NRGBA) {
	if len(coreColors) > 3 {
		coreColors = coreColors[:3]
	}
	var parsed []color.NRGBA
	for _, c := range coreColors {
		if rgb, ok := ParseHex(c); ok {
			parsed = append(parsed, rgb)
		}
	}
	switch {
	case len(parsed) >= 2:
		return parsed[0], parsed[1]
	case len(parsed) == 1:
		c := parsed[0]
		return lighten(c, 60, 55, 60), darken(c, 30, 30, 20)
	}

	if len(cutoutPNG) > 0 {
		dominant := dominantColors(cutoutPNG, 2)
		switch {
		case len(dominant) >= 2:
			return lighten(dominant[0], 80, 80, 80), darken(dominant[1], 40, 40, 40)
		case len(dominant) == 1:
			c := dominant[0]
			return lighten(c, 80, 75, 80), darken(c, 50, 50, 40)
		}
	}
	return defaultGradientTop, defaultGradientBottom
}

// ParseHex parses "#ffcc00" or "ffcc00" into an opaque color.
func ParseHex(s string) (color.NRGBA, bool) {
	h := s
	if len(h) > 0 && h[0] == '#' {
		h = h[1:]
	}
	if len(h) != 6 {
		return color.NRGBA{}, false
	}
	var vals [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(h[2*i])
		lo, ok2 := hexNibble(h[2*i+1])
		if !ok1 || !ok2 {
			return color.NRGBA{}, false
		}
		vals[i] = hi<<4 | lo
	}
	return color.NRGBA{R: vals[0], G: vals[1], B: vals[2], A: 255}, true
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// dominantColors samples the most frequent mid-tone colors from the image.
// The image is downscaled to 50x50 and channels are bucketed in steps of 16;
// near-white and near-black pixels are skipped because they are usually
// background remnants or shadows.
func dominantColors(imageBytes []byte, n int) []color.NRGBA {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil
	}
	small := imaging.Resize(src, 50, 50, imaging.Lanczos)

	counts := map[color.NRGBA]int{}
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			c := small.NRGBAAt(x, y)
			sum := int(c.R) + int(c.G) + int(c.B)
			if sum <= 30 || sum >= 720 {
				continue
			}
			bucket := color.NRGBA{R: c.R / 16 * 16, G: c.G / 16 * 16, B: c.B / 16 * 16, A: 255}
			counts[bucket]++
		}
	}
	type entry struct {
		c     color.NRGBA
		count int
	}
	entries := make([]entry, 0, len(counts))
	for c, count := range counts {
		entries = append(entries, entry{c, count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].count > entries[j].count })

	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]color.NRGBA, len(entries))
	for i, e := range entries {
		out[i] = e.c
	}
	return out
}

func lighten(c color.NRGBA, dr, dg, db int) color.NRGBA {
	return color.NRGBA{R: clampByte(int(c.R) + dr), G: clampByte(int(c.G) + dg), B: clampByte(int(c.B) + db), A: 255}
}

func darken(c color.NRGBA, dr, dg, db int) color.NRGBA {
	return color.NRGBA{R: clampByte(int(c.R) - dr), G: clampByte(int(c.G) - dg), B: clampByte(int(c.B) - db), A: 255}
}

func lerpColor(a, b color.NRGBA, t float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(a.R)*(1-t) + float64(b.R)*t),
		G: uint8(float64(a.G)*(1-t) + float64(b.G)*t),
		B: uint8(float64(a.B)*(1-t) + float64(b.B)*t),
		A: 255,
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
