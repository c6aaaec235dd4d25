package vision

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Candidate is one face proposed by the RetinaFace detector.
type Candidate struct {
	BBox       [4]float32 // x1, y1, x2, y2 in source pixels
	Confidence float32
	Landmarks  [5][2]float32
}

// Rect returns the candidate box as integer pixel bounds.
func (c Candidate) Rect() image.Rectangle {
	return image.Rect(int(c.BBox[0]), int(c.BBox[1]), int(c.BBox[2]), int(c.BBox[3]))
}

// Detector runs RetinaFace det_10g. A detector owns its tensors, so Detect
// calls are serialized.
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsThreshold  float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// NewDetector loads the RetinaFace ONNX model. opts may be nil.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Output order is scores, boxes, landmarks; each at strides 8, 16, 32.
	// Row counts are (640/stride)^2 * anchorsPerStride.
	outputs := []struct {
		name  string
		shape ort.Shape
	}{
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

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		nmsThreshold:  0.4,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect finds faces in img. Candidates are ordered by descending confidence.
func (d *Detector) Detect(img image.Image) ([]Candidate, error) {
	b := img.Bounds()
	input := preprocessForDetection(img, d.inputW, d.inputH)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	candidates := d.parseCandidates(b.Dx(), b.Dy())
	for i := range candidates {
		for k := 0; k < 4; k += 2 {
			candidates[i].BBox[k] += float32(b.Min.X)
			candidates[i].BBox[k+1] += float32(b.Min.Y)
		}
	}
	return nms(candidates, d.nmsThreshold), nil
}

// parseCandidates decodes the anchor grid outputs into boxes in source
// coordinates relative to the image origin.
func (d *Detector) parseCandidates(origW, origH int) []Candidate {
	var out []Candidate

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()
		landmarks := d.outputTensors[si+6].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						x1 := clampF((ax-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((ay-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((ax+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((ay+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (ax + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (ay + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						out = append(out, Candidate{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: score,
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}
	return out
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

// nms keeps the highest-confidence box of every overlapping group.
func nms(candidates []Candidate, iouThreshold float32) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}
	for i := range candidates {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			if keep[j] && iou(candidates[i].BBox, candidates[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Candidate
	for i, c := range candidates {
		if keep[i] {
			result = append(result, c)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
