//go:build dlib

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	face "github.com/Kagami/go-face"

	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/observability"
)

const dlibDim = 128

// DlibCapability wraps dlib's ResNet face recognizer (128-d descriptors,
// euclidean tolerance). go-face only reads JPEG, so images are re-encoded.
type DlibCapability struct {
	mu        sync.Mutex
	rec       *face.Recognizer
	tolerance float64
}

// NewDlibCapability expects shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat in cfg.ModelsDir.
func NewDlibCapability(cfg config.VisionConfig) (*DlibCapability, error) {
	slog.Info("loading dlib models", "dir", cfg.ModelsDir)
	rec, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib recognizer: %w", err)
	}
	return &DlibCapability{rec: rec, tolerance: cfg.MatchThreshold}, nil
}

func newDlibCapability(cfg config.VisionConfig) (Capability, error) {
	c, err := NewDlibCapability(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DlibCapability) recognize(img image.Image) ([]face.Face, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	faces, err := c.rec.Recognize(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	return faces, nil
}

func (c *DlibCapability) Detect(img image.Image) ([]BoundingBox, error) {
	start := time.Now()
	faces, err := c.recognize(img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	offset := img.Bounds().Min
	boxes := make([]BoundingBox, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, BoundingBox{Rectangle: f.Rectangle.Add(offset), Confidence: 1})
	}
	sortScanOrder(boxes)
	return boxes, nil
}

func (c *DlibCapability) Embed(img image.Image) ([]float32, bool, error) {
	start := time.Now()
	faces, err := c.recognize(img)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, err
	}
	if len(faces) == 0 {
		return nil, false, nil
	}

	first := faces[0]
	for _, f := range faces[1:] {
		if f.Rectangle.Min.Y < first.Rectangle.Min.Y ||
			(f.Rectangle.Min.Y == first.Rectangle.Min.Y && f.Rectangle.Min.X < first.Rectangle.Min.X) {
			first = f
		}
	}

	embedding := make([]float32, dlibDim)
	copy(embedding, first.Descriptor[:])
	return embedding, true, nil
}

func (c *DlibCapability) Compare(known [][]float32, candidate []float32) []bool {
	return compareEuclidean(known, candidate, c.tolerance)
}

func (c *DlibCapability) Dim() int { return dlibDim }

func (c *DlibCapability) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.Close()
}
