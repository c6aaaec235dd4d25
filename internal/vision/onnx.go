package vision

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/verify"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"
)

// ONNXAnalyzer detects faces with RetinaFace and describes them with ArcFace.
// ArcFace embeddings are unit length, so pair distances fall in [0, 2].
type ONNXAnalyzer struct {
	detector *Detector
	embedder *Embedder
}

// NewONNXAnalyzer loads both models from modelsDir. The ONNX environment
// must already be initialised with InitONNX.
func NewONNXAnalyzer(modelsDir string, threshold float32, logger *zap.Logger) (*ONNXAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	detPath := filepath.Join(modelsDir, detectorModel)
	embPath := filepath.Join(modelsDir, embedderModel)

	logger.Info("loading detection model", zap.String("path", detPath))
	det, err := NewDetector(detPath, threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	logger.Info("loading embedding model", zap.String("path", embPath))
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXAnalyzer{detector: det, embedder: emb}, nil
}

func (a *ONNXAnalyzer) Detect(img image.Image) ([]verify.Detection, error) {
	candidates, err := a.detector.Detect(img)
	if err != nil {
		return nil, err
	}
	dets := make([]verify.Detection, 0, len(candidates))
	for _, c := range candidates {
		r := c.Rect()
		if r.Empty() {
			continue
		}
		dets = append(dets, verify.Detection{Box: r, Score: c.Confidence})
	}
	return dets, nil
}

func (a *ONNXAnalyzer) Embed(img image.Image, det verify.Detection) ([]float32, error) {
	crop := cropFace(img, det.Box)
	if crop == nil {
		return nil, errors.New("face box outside image")
	}
	return a.embedder.Extract(crop)
}

func (a *ONNXAnalyzer) Close() {
	a.detector.Close()
	a.embedder.Close()
}
