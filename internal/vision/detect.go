package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

// det_10g emits scores, boxes and landmarks for strides 8, 16 and 32,
// two anchors per feature-map cell.
var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsIoU           = 0.4
)

// NewDetector loads the RetinaFace ONNX model.
func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output order: scores x3, boxes x3, landmarks x3. No batch dimension.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	d := &Detector{inputTensor: inputTensor, threshold: threshold, inputW: inputW, inputH: inputH}

	outputNames := make([]string, len(outputs))
	outputValues := make([]ort.Value, len(outputs))
	for i, spec := range outputs {
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		outputNames[i] = spec.name
		outputValues[i] = t
		d.outputTensors = append(d.outputTensors, t)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return d, nil
}

// Detect returns face boxes in img coordinates, in scan order.
func (d *Detector) Detect(img image.Image) ([]BoundingBox, error) {
	bounds := img.Bounds()
	copy(d.inputTensor.GetData(), preprocessForDetection(img, d.inputW, d.inputH))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	boxes := nms(d.decode(bounds), nmsIoU)
	sortScanOrder(boxes)
	return boxes, nil
}

// decode turns anchor-relative distances into pixel boxes above threshold.
func (d *Detector) decode(bounds image.Rectangle) []BoundingBox {
	var boxes []BoundingBox

	scaleW := float32(bounds.Dx()) / float32(d.inputW)
	scaleH := float32(bounds.Dy()) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		deltas := d.outputTensors[si+len(strides)].GetData()
		st := float32(stride)

		idx := 0
		for cy := 0; cy < d.inputH/stride; cy++ {
			for cx := 0; cx < d.inputW/stride; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st
						x1 := (ax - deltas[idx*4+0]*st) * scaleW
						y1 := (ay - deltas[idx*4+1]*st) * scaleH
						x2 := (ax + deltas[idx*4+2]*st) * scaleW
						y2 := (ay + deltas[idx*4+3]*st) * scaleH

						r := image.Rect(
							bounds.Min.X+int(x1), bounds.Min.Y+int(y1),
							bounds.Min.X+int(x2), bounds.Min.Y+int(y2),
						).Intersect(bounds)
						if !r.Empty() {
							boxes = append(boxes, BoundingBox{Rectangle: r, Confidence: score})
						}
					}
					idx++
				}
			}
		}
	}

	return boxes
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the most confident box among overlapping ones.
func nms(boxes []BoundingBox, iouThreshold float64) []BoundingBox {
	if len(boxes) == 0 {
		return boxes
	}

	sort.Slice(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	suppressed := make([]bool, len(boxes))
	var kept []BoundingBox
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if !suppressed[j] && iou(boxes[i].Rectangle, boxes[j].Rectangle) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return math.Min(1, interArea/union)
}
