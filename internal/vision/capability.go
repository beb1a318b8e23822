package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/your-org/facerecog/internal/config"
)

// BoundingBox is a detected face region in pixel coordinates of the source image.
type BoundingBox struct {
	image.Rectangle
	Confidence float32
}

// Capability is the face detection / embedding / comparison backend.
// Implementations own native resources and must be closed.
type Capability interface {
	// Detect returns every face in img ordered top-to-bottom, left-to-right.
	Detect(img image.Image) ([]BoundingBox, error)
	// Embed computes the embedding of the first face found in img.
	// ok is false when img contains no detectable face.
	Embed(img image.Image) (embedding []float32, ok bool, err error)
	// Compare reports, for each known embedding, whether candidate is the
	// same person under the backend's fixed threshold.
	Compare(known [][]float32, candidate []float32) []bool
	// Dim is the embedding dimensionality.
	Dim() int
	Close()
}

var ErrNoImage = errors.New("image could not be decoded")

// NewCapability loads the models for the configured backend.
func NewCapability(cfg config.VisionConfig) (Capability, error) {
	switch cfg.Backend {
	case config.BackendONNX:
		c, err := NewONNXCapability(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendDlib:
		return newDlibCapability(cfg)
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Backend)
	}
}

// DecodeImage decodes jpeg, png, gif, webp or bmp bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	return img, nil
}

// Crop returns the part of img inside box, padded by pad (fraction of the
// box size on each side) and clamped to the image bounds. It returns nil for
// an empty region.
func Crop(img image.Image, box image.Rectangle, pad float64) image.Image {
	bounds := img.Bounds()
	r := box.Intersect(bounds)
	if r.Empty() {
		return nil
	}

	padW := int(float64(r.Dx()) * pad)
	padH := int(float64(r.Dy()) * pad)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}

// sortScanOrder orders boxes top-to-bottom, then left-to-right.
func sortScanOrder(boxes []BoundingBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Min.Y != boxes[j].Min.Y {
			return boxes[i].Min.Y < boxes[j].Min.Y
		}
		return boxes[i].Min.X < boxes[j].Min.X
	})
}

// compareCosine matches when cosine similarity is at least threshold.
func compareCosine(known [][]float32, candidate []float32, threshold float64) []bool {
	out := make([]bool, len(known))
	if len(candidate) == 0 {
		return out
	}
	for i, k := range known {
		if len(k) != len(candidate) {
			continue
		}
		out[i] = cosineSimilarity(k, candidate) >= threshold
	}
	return out
}

// compareEuclidean matches when euclidean distance is at most tolerance.
func compareEuclidean(known [][]float32, candidate []float32, tolerance float64) []bool {
	out := make([]bool, len(known))
	if len(candidate) == 0 {
		return out
	}
	for i, k := range known {
		if len(k) != len(candidate) {
			continue
		}
		out[i] = euclideanDistance(k, candidate) <= tolerance
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
