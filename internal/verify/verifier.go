package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/observability"
)

// Verifier is the single entry point of the verification core: it acquires
// both images and hands them to the engine. It keeps no state between calls.
type Verifier struct {
	acquirer *Acquirer
	engine   *Engine
	logger   *zap.Logger
}

func NewVerifier(acquirer *Acquirer, engine *Engine, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{acquirer: acquirer, engine: engine, logger: logger.Named("verify")}
}

// Verify decides whether capture and reference depict the same person.
// Errors are *ImageDecodeError, *RemoteFetchError, *FaceProcessingError,
// ErrUnavailable or a context error; no-face outcomes are returned as results.
func (v *Verifier) Verify(ctx context.Context, capture []byte, reference Source) (*Result, error) {
	captureImg, refImg, err := v.acquirer.Acquire(ctx, capture, reference)
	if err != nil {
		observability.Verifications.WithLabelValues("error").Inc()
		v.logger.Info("image acquisition failed", zap.Bool("remote_reference", reference.IsURL()), zap.Error(err))
		return nil, err
	}

	result, err := v.engine.Compare(ctx, captureImg, refImg)
	if err != nil {
		observability.Verifications.WithLabelValues("error").Inc()
		v.logger.Warn("face comparison failed", zap.Error(err))
		return nil, err
	}

	observability.Verifications.WithLabelValues(result.Outcome()).Inc()
	fields := []zap.Field{zap.Bool("matched", result.Matched), zap.String("outcome", result.Outcome())}
	if result.Distance != nil {
		fields = append(fields, zap.Float64("distance", *result.Distance))
	}
	v.logger.Info("verification completed", fields...)
	return result, nil
}
