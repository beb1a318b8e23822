package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/observability"
)

// cropPadding widens each detected box before embedding.
const cropPadding = 0.1

// ONNXCapability detects with RetinaFace and embeds with ArcFace.
// The ONNX sessions bind fixed tensors, so calls are serialised.
type ONNXCapability struct {
	mu        sync.Mutex
	detector  *Detector
	embedder  *Embedder
	threshold float64
}

// NewONNXCapability initialises the ONNX Runtime environment and loads both models.
// Close releases the models and the environment.
func NewONNXCapability(cfg config.VisionConfig) (*ONNXCapability, error) {
	ort.SetSharedLibraryPath(sharedLibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}

	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath)
	if err != nil {
		det.Close()
		_ = ort.DestroyEnvironment()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXCapability{detector: det, embedder: emb, threshold: cfg.MatchThreshold}, nil
}

func (c *ONNXCapability) Detect(img image.Image) ([]BoundingBox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	boxes, err := c.detector.Detect(img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	return boxes, err
}

func (c *ONNXCapability) Embed(img image.Image) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	boxes, err := c.detector.Detect(img)
	if err != nil {
		return nil, false, err
	}
	if len(boxes) == 0 {
		return nil, false, nil
	}

	face := Crop(img, boxes[0].Rectangle, cropPadding)
	if face == nil {
		return nil, false, nil
	}

	start := time.Now()
	embedding, err := c.embedder.Extract(face)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}
	return embedding, true, nil
}

func (c *ONNXCapability) Compare(known [][]float32, candidate []float32) []bool {
	return compareCosine(known, candidate, c.threshold)
}

func (c *ONNXCapability) Dim() int { return arcFaceDim }

func (c *ONNXCapability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector.Close()
	c.embedder.Close()
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnx runtime", "error", err)
	}
}

func sharedLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
