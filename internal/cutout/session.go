// Package cutout removes product image backgrounds. The local path runs ONNX
// segmentation models in-process; the remote path calls the Replicate
// predictions API. Callers go through Engine, which prefers the free local
// path and falls back to the paid remote service.
package cutout

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// modelSpec describes one segmentation model in the fallback chain.
type modelSpec struct {
	name      string
	inputSide int
	mean      [3]float32
	std       [3]float32
}

var (
	briaSpec     = modelSpec{name: "bria-rmbg", inputSide: 1024, mean: [3]float32{0.5, 0.5, 0.5}, std: [3]float32{1, 1, 1}}
	birefnetSpec = modelSpec{name: "birefnet-general", inputSide: 1024, mean: [3]float32{0.485, 0.456, 0.406}, std: [3]float32{0.229, 0.224, 0.225}}
	isnetSpec    = modelSpec{name: "isnet-general-use", inputSide: 1024, mean: [3]float32{0.5, 0.5, 0.5}, std: [3]float32{1, 1, 1}}
	u2netSpec    = modelSpec{name: "u2net", inputSide: 320, mean: [3]float32{0.485, 0.456, 0.406}, std: [3]float32{0.229, 0.224, 0.225}}
)

// modelChain returns the model preference order for a quality profile. The
// heavier chains lead with the model tuned for product photography.
func modelChain(quality string) []modelSpec {
	switch quality {
	case "low", "balanced":
		return []modelSpec{isnetSpec, u2netSpec, briaSpec}
	default:
		return []modelSpec{briaSpec, birefnetSpec, isnetSpec, u2netSpec}
	}
}

// session wraps a loaded ONNX model.
type session struct {
	spec       modelSpec
	inner      *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

var (
	envOnce    sync.Once
	envInitErr error

	sessionGroup  singleflight.Group
	sessionMu     sync.Mutex
	cachedSession *session
)

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envInitErr = ort.InitializeEnvironment()
	})
	return envInitErr
}

// acquireSession returns the process-wide segmentation session, loading the
// first available model from the quality chain on first use. Concurrent
// callers share one load via singleflight.
func acquireSession(cfg LocalConfig, logger *zap.Logger) (*session, error) {
	sessionMu.Lock()
	if cachedSession != nil {
		s := cachedSession
		sessionMu.Unlock()
		return s, nil
	}
	sessionMu.Unlock()

	v, err, _ := sessionGroup.Do("session", func() (any, error) {
		if err := initEnvironment(cfg.OnnxLibrary); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
		var lastErr error
		for _, spec := range modelChain(cfg.Quality) {
			s, err := loadSession(cfg.ModelDir, spec)
			if err != nil {
				lastErr = err
				logger.Debug("segmentation model unavailable",
					zap.String("model", spec.name), zap.Error(err))
				continue
			}
			logger.Info("segmentation model loaded", zap.String("model", spec.name))
			sessionMu.Lock()
			cachedSession = s
			sessionMu.Unlock()
			return s, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no segmentation models in %s", cfg.ModelDir)
		}
		return nil, lastErr
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func loadSession(modelDir string, spec modelSpec) (*session, error) {
	path := filepath.Join(modelDir, spec.name+".onnx")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("model io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", spec.name)
	}
	inner, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &session{
		spec:       spec,
		inner:      inner,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}, nil
}

// predict runs the model over normalized CHW pixel data and returns the raw
// mask values at model resolution.
func (s *session) predict(chw []float32) ([]float32, error) {
	side := int64(s.spec.inputSide)
	input, err := ort.NewTensor(ort.NewShape(1, 3, side, side), chw)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.inner.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer out.Destroy()
	return append([]float32(nil), out.GetData()...), nil
}
