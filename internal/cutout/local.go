package cutout

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/wavaa/thumbforge/internal/thumbnail"
)

// LocalConfig controls in-process background removal.
type LocalConfig struct {
	ModelDir    string
	Quality     string
	PostProcess bool
	OnnxLibrary string
}

// Matting thresholds: mask values at or above fg become fully opaque, values
// at or below bg become fully transparent, and the band between keeps its
// continuous alpha so soft edges survive.
const (
	mattingForeground = 245
	mattingBackground = 8
	mattingErode      = 3
)

// maxSide caps the working resolution per quality profile.
func maxSide(quality string) int {
	switch quality {
	case "ultra":
		return 2560
	case "low", "balanced":
		return 1536
	default:
		return 2048
	}
}

// LocalEngine performs segmentation with an in-process ONNX session.
type LocalEngine struct {
	cfg    LocalConfig
	logger *zap.Logger
}

// NewLocalEngine builds the engine. Model loading is deferred to the first
// Remove call so a missing runtime only disables the local path.
func NewLocalEngine(cfg LocalConfig, logger *zap.Logger) *LocalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalEngine{cfg: cfg, logger: logger}
}

// Remove segments the product out of the source image and returns a PNG with
// a continuous alpha channel.
func (e *LocalEngine) Remove(ctx context.Context, imageBytes []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", thumbnail.ErrTimeout, err)
	}
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode source image: %v", thumbnail.ErrProcessing, err)
	}

	// Downscale oversized sources before inference; segmentation quality
	// saturates around these resolutions and memory does not.
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if longest := max(w, h); longest > maxSide(e.cfg.Quality) {
		ratio := float64(maxSide(e.cfg.Quality)) / float64(longest)
		w, h = int(float64(w)*ratio), int(float64(h)*ratio)
		src = imaging.Resize(src, w, h, imaging.Lanczos)
	}

	sess, err := acquireSession(e.cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("local segmentation unavailable: %w", err)
	}

	mask, err := e.inferMask(ctx, sess, src, w, h)
	if err != nil {
		return nil, err
	}
	applyMatting(mask, e.cfg.PostProcess)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	nrgba := imaging.Clone(src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := nrgba.NRGBAAt(x, y)
			c.A = mask.GrayAt(x, y).Y
			out.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("%w: encode cutout: %v", thumbnail.ErrProcessing, err)
	}
	return buf.Bytes(), nil
}

func (e *LocalEngine) inferMask(ctx context.Context, sess *session, src image.Image, w, h int) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", thumbnail.ErrTimeout, err)
	}
	side := sess.spec.inputSide
	scaled := imaging.Resize(src, side, side, imaging.Lanczos)

	chw := make([]float32, 3*side*side)
	plane := side * side
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			c := scaled.NRGBAAt(x, y)
			idx := y*side + x
			chw[idx] = (float32(c.R)/255 - sess.spec.mean[0]) / sess.spec.std[0]
			chw[plane+idx] = (float32(c.G)/255 - sess.spec.mean[1]) / sess.spec.std[1]
			chw[2*plane+idx] = (float32(c.B)/255 - sess.spec.mean[2]) / sess.spec.std[2]
		}
	}

	raw, err := sess.predict(chw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", thumbnail.ErrProcessing, err)
	}
	if len(raw) < plane {
		return nil, fmt.Errorf("%w: mask output too small (%d values)", thumbnail.ErrProcessing, len(raw))
	}
	raw = raw[:plane]

	// Min-max normalize; several of the models emit unbounded logits.
	lo, hi := raw[0], raw[0]
	for _, v := range raw {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := hi - lo
	if scale <= 0 {
		scale = 1
	}

	maskSmall := image.NewGray(image.Rect(0, 0, side, side))
	for i, v := range raw {
		maskSmall.Pix[i] = uint8((v - lo) / scale * 255)
	}

	resized := imaging.Resize(maskSmall, w, h, imaging.Linear)
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := resized.At(x, y).RGBA()
			mask.SetGray(x, y, color.Gray{Y: uint8(r >> 8)})
		}
	}
	return mask, nil
}

// applyMatting clamps confident regions of the mask and erodes the binary
// foreground to cut halo pixels around hard edges. The postProcess flag adds
// a smoothing pass on top; clamping and erosion always run.
func applyMatting(mask *image.Gray, postProcess bool) {
	clampMask(mask)
	erode(mask, mattingErode)
	if postProcess {
		smoothMask(mask)
	}
}

// clampMask snaps confident mask values to fully opaque or fully transparent
// while keeping continuous alpha in the uncertain band.
func clampMask(mask *image.Gray) {
	for i, v := range mask.Pix {
		switch {
		case v >= mattingForeground:
			mask.Pix[i] = 255
		case v <= mattingBackground:
			mask.Pix[i] = 0
		}
	}
}

// smoothMask runs a 3x3 box blur over the mask to soften staircase edges
// left by erosion.
func smoothMask(mask *image.Gray) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	src := append([]uint8(nil), mask.Pix...)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += int(src[ny*w+nx])
					n++
				}
			}
			mask.Pix[y*w+x] = uint8(sum / n)
		}
	}
}

// erode shrinks fully-opaque regions by the given radius using a square
// structuring element over the binarized mask.
func erode(mask *image.Gray, radius int) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	src := append([]uint8(nil), mask.Pix...)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if src[idx] != 255 {
				continue
			}
			lowest := uint8(255)
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if v := src[ny*w+nx]; v < lowest {
						lowest = v
					}
				}
			}
			mask.Pix[idx] = lowest
		}
	}
}
