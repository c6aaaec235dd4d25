package vision

import (
	"errors"
	"fmt"
	"image"
	"sync"

	face "github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/verify"
)

// jpegQuality is used when handing decoded bitmaps to dlib, which only reads JPEG.
const jpegQuality = 95

// DlibAnalyzer wraps the dlib ResNet face recognizer. Its 128-d descriptors
// are calibrated so that 0.6 separates same-person pairs.
type DlibAnalyzer struct {
	mu     sync.Mutex
	rec    *face.Recognizer
	useCNN bool
}

// NewDlibAnalyzer loads shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and, for CNN detection,
// mmod_human_face_detector.dat from modelsDir.
func NewDlibAnalyzer(modelsDir string, useCNN bool, logger *zap.Logger) (*DlibAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("loading dlib models", zap.String("dir", modelsDir), zap.Bool("cnn", useCNN))
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib recognizer: %w", err)
	}
	return &DlibAnalyzer{rec: rec, useCNN: useCNN}, nil
}

// Detect locates and describes every face in one pass; the descriptor is
// carried on the detection.
func (a *DlibAnalyzer) Detect(img image.Image) ([]verify.Detection, error) {
	data, err := encodeJPEG(img, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("encode for dlib: %w", err)
	}

	a.mu.Lock()
	var faces []face.Face
	if a.useCNN {
		faces, err = a.rec.RecognizeCNN(data)
	} else {
		faces, err = a.rec.Recognize(data)
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	origin := img.Bounds().Min
	dets := make([]verify.Detection, len(faces))
	for i, f := range faces {
		emb := make([]float32, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		dets[i] = verify.Detection{
			Box:       f.Rectangle.Add(origin),
			Score:     1,
			Embedding: emb,
		}
	}
	return dets, nil
}

func (a *DlibAnalyzer) Embed(_ image.Image, det verify.Detection) ([]float32, error) {
	if len(det.Embedding) == 0 {
		return nil, errors.New("detection carries no descriptor")
	}
	return det.Embedding, nil
}

func (a *DlibAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.Close()
}
