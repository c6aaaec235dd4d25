package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/your-org/attendance/internal/observability"
)

// Detection is one face located by a FaceAnalyzer.
type Detection struct {
	Box   image.Rectangle
	Score float32
	// Embedding is set by analyzers that describe every face while detecting.
	Embedding []float32
}

// FaceAnalyzer locates faces and extracts embeddings. Detections are
// returned in the analyzer's detection order.
type FaceAnalyzer interface {
	Detect(img image.Image) ([]Detection, error)
	Embed(img image.Image, det Detection) ([]float32, error)
}

// SelectionPolicy decides which face represents an image.
type SelectionPolicy string

const (
	SelectFirst   SelectionPolicy = "first"
	SelectLargest SelectionPolicy = "largest"
	SelectSingle  SelectionPolicy = "single"
)

// ParsePolicy maps a config value to a policy; "" means SelectFirst.
func ParsePolicy(s string) (SelectionPolicy, error) {
	switch SelectionPolicy(s) {
	case "", SelectFirst:
		return SelectFirst, nil
	case SelectLargest:
		return SelectLargest, nil
	case SelectSingle:
		return SelectSingle, nil
	}
	return "", fmt.Errorf("unknown face selection policy %q", s)
}

var errMultipleFaces = errors.New("multiple faces")

func (p SelectionPolicy) pick(dets []Detection) (Detection, error) {
	switch p {
	case SelectLargest:
		best := dets[0]
		for _, d := range dets[1:] {
			if area(d.Box) > area(best.Box) {
				best = d
			}
		}
		return best, nil
	case SelectSingle:
		if len(dets) > 1 {
			return Detection{}, errMultipleFaces
		}
	}
	return dets[0], nil
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// ErrUnavailable is returned when no analyzer is configured.
var ErrUnavailable = errors.New("face analyzer unavailable")

// Engine compares the faces in two bitmaps. CPU-bound analysis runs under a
// weighted semaphore so at most workers comparisons execute at once.
type Engine struct {
	analyzer FaceAnalyzer
	policy   SelectionPolicy
	slots    *semaphore.Weighted
	logger   *zap.Logger
}

// NewEngine returns an engine; workers < 1 is treated as 1.
func NewEngine(analyzer FaceAnalyzer, policy SelectionPolicy, workers int, logger *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if policy == "" {
		policy = SelectFirst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		analyzer: analyzer,
		policy:   policy,
		slots:    semaphore.NewWeighted(int64(workers)),
		logger:   logger.Named("engine"),
	}
}

// Compare detects one face per image and classifies the pair.
// No-face and multiple-face outcomes are results, not errors.
func (e *Engine) Compare(ctx context.Context, capture, reference image.Image) (*Result, error) {
	if e.analyzer == nil {
		return nil, ErrUnavailable
	}
	// Waiting for a slot is the only cancellable point.
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	observability.AnalyzerSlotsInUse.Inc()
	defer func() {
		observability.AnalyzerSlotsInUse.Dec()
		e.slots.Release(1)
	}()

	captureEmb, captureState, err := e.describe(RoleCapture, capture)
	if err != nil {
		return nil, err
	}
	refEmb, refState, err := e.describe(RoleReference, reference)
	if err != nil {
		return nil, err
	}

	switch {
	case captureState == faceMissing || refState == faceMissing:
		e.logger.Debug("no face detected",
			zap.Bool("capture", captureState == faceMissing),
			zap.Bool("reference", refState == faceMissing))
		return noFaceResult(), nil
	case captureState == faceAmbiguous || refState == faceAmbiguous:
		return multipleFacesResult(), nil
	}

	start := time.Now()
	distance, err := EuclideanDistance(captureEmb, refEmb)
	if err != nil {
		return nil, &FaceProcessingError{Stage: "compare", Err: err}
	}
	observability.StageDuration.WithLabelValues("compare").Observe(time.Since(start).Seconds())

	return Decide(distance), nil
}

type faceState int

const (
	faceFound faceState = iota
	faceMissing
	faceAmbiguous
)

func (e *Engine) describe(role string, img image.Image) (emb []float32, state faceState, err error) {
	stage := "detect"
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("face analyzer panicked", zap.String("role", role), zap.Any("panic", r))
			emb, state = nil, faceMissing
			err = &FaceProcessingError{Stage: stage, Role: role, Err: fmt.Errorf("analyzer panic: %v", r)}
		}
	}()

	start := time.Now()
	dets, err := e.analyzer.Detect(img)
	if err != nil {
		return nil, faceMissing, &FaceProcessingError{Stage: "detect", Role: role, Err: err}
	}
	observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if len(dets) == 0 {
		return nil, faceMissing, nil
	}
	det, err := e.policy.pick(dets)
	if errors.Is(err, errMultipleFaces) {
		return nil, faceAmbiguous, nil
	}

	stage = "embed"
	start = time.Now()
	emb, err = e.analyzer.Embed(img, det)
	if err != nil {
		return nil, faceMissing, &FaceProcessingError{Stage: "embed", Role: role, Err: err}
	}
	observability.StageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	if len(emb) == 0 {
		return nil, faceMissing, &FaceProcessingError{Stage: "embed", Role: role, Err: errors.New("empty embedding")}
	}
	return emb, faceFound, nil
}

// EuclideanDistance returns the L2 distance between two embeddings of equal length.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	dist := math.Sqrt(sum)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, fmt.Errorf("non-finite distance")
	}
	return dist, nil
}
