// Package visiontest provides a deterministic Capability for tests.
//
// A "face" is a solid block of one non-black colour; its embedding is the
// colour's normalised RGB triple. Two faces match when their colours are equal.
package visiontest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/your-org/facerecog/internal/vision"
)

type Fake struct {
	DetectErr error
	EmbedErr  error

	// Calls counts Detect and Embed invocations.
	DetectCalls int
	EmbedCalls  int
	Closed      bool
}

var _ vision.Capability = (*Fake)(nil)

func (f *Fake) Detect(img image.Image) ([]vision.BoundingBox, error) {
	f.DetectCalls++
	if f.DetectErr != nil {
		return nil, f.DetectErr
	}
	return blocks(img), nil
}

func (f *Fake) Embed(img image.Image) ([]float32, bool, error) {
	f.EmbedCalls++
	if f.EmbedErr != nil {
		return nil, false, f.EmbedErr
	}
	boxes := blocks(img)
	if len(boxes) == 0 {
		return nil, false, nil
	}
	b := boxes[0]
	r, g, bl, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	return []float32{float32(r>>8) / 255, float32(g>>8) / 255, float32(bl>>8) / 255}, true, nil
}

func (f *Fake) Compare(known [][]float32, candidate []float32) []bool {
	out := make([]bool, len(known))
	for i, k := range known {
		if len(k) != len(candidate) {
			continue
		}
		same := true
		for j := range k {
			d := k[j] - candidate[j]
			if d > 0.01 || d < -0.01 {
				same = false
				break
			}
		}
		out[i] = same
	}
	return out
}

func (f *Fake) Dim() int { return 3 }

func (f *Fake) Close() { f.Closed = true }

// blocks returns one box per distinct non-black colour, in scan order.
func blocks(img image.Image) []vision.BoundingBox {
	b := img.Bounds()
	found := map[color.RGBA]image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if c.R == 0 && c.G == 0 && c.B == 0 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if r, ok := found[c]; ok {
				found[c] = r.Union(px)
			} else {
				found[c] = px
			}
		}
	}

	boxes := make([]vision.BoundingBox, 0, len(found))
	for _, r := range found {
		boxes = append(boxes, vision.BoundingBox{Rectangle: r, Confidence: 1})
	}
	sort.Slice(boxes, func(i, j int) bool {
		if boxes[i].Min.Y != boxes[j].Min.Y {
			return boxes[i].Min.Y < boxes[j].Min.Y
		}
		return boxes[i].Min.X < boxes[j].Min.X
	})
	return boxes
}

// Faces renders a PNG with one 8x8 face block per colour, left to right,
// on a black background. No colours yields a blank image.
func Faces(colors ...color.RGBA) []byte {
	w := 8 + 16*len(colors)
	img := image.NewRGBA(image.Rect(0, 0, w, 24))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
		}
	}
	for i, c := range colors {
		x0 := 8 + 16*i
		for y := 8; y < 16; y++ {
			for x := x0; x < x0+8; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var (
	Red   = color.RGBA{R: 200, A: 255}
	Green = color.RGBA{G: 200, A: 255}
	Blue  = color.RGBA{B: 200, A: 255}
)
