package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/verify"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNoProfilePicture = errors.New("user has no profile picture")
)

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type URLSigner interface {
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

type Recorder interface {
	RecordAttendance(ctx context.Context, rec *models.AttendanceRecord) error
}

type Publisher interface {
	PublishAttendance(ctx context.Context, ev models.AttendanceEvent) error
}

type Verifier interface {
	Verify(ctx context.Context, capture []byte, reference verify.Source) (*verify.Result, error)
}

// RetryPolicy bounds retries of transient reference fetch failures.
type RetryPolicy struct {
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Service struct {
	users     UserStore
	signer    URLSigner
	verifier  Verifier
	recorder  Recorder
	publisher Publisher
	retry     RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the check-in flow. recorder and publisher may be nil.
func NewService(users UserStore, signer URLSigner, verifier Verifier, recorder Recorder, publisher Publisher, retry RetryPolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:     users,
		signer:    signer,
		verifier:  verifier,
		recorder:  recorder,
		publisher: publisher,
		retry:     retry,
		logger:    logger.Named("attendance"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn verifies capture against the user's profile picture and records
// the attempt. Recording and publishing are best effort: their failures are
// logged and never change the returned result.
func (s *Service) CheckIn(ctx context.Context, userID uuid.UUID, capture []byte) (*verify.Result, error) {
	logger := observability.WithOperation(s.logger, "check_in", observability.RequestIDFromContext(ctx)).
		With(zap.String("user_id", userID.String()))

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.HasProfilePicture() {
		return nil, ErrNoProfilePicture
	}

	refURL, err := s.signer.PresignedGetURL(ctx, *user.ProfilePicture)
	if err != nil {
		return nil, fmt.Errorf("sign profile picture: %w", err)
	}

	result, err := s.verifyWithRetry(ctx, logger, capture, verify.URL(refURL))
	if err != nil {
		return nil, err
	}

	rec := &models.AttendanceRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Matched:    result.Matched,
		Distance:   result.Distance,
		Confidence: result.Confidence,
		Reason:     result.Error,
		CheckedAt:  s.now(),
	}
	if s.recorder != nil {
		if err := s.recorder.RecordAttendance(ctx, rec); err != nil {
			logger.Error("record attendance", zap.Error(err))
		}
	}
	if s.publisher != nil {
		ev := models.AttendanceEvent{
			RecordID:   rec.ID,
			UserID:     userID,
			UserName:   user.Name,
			Matched:    rec.Matched,
			Distance:   rec.Distance,
			Confidence: rec.Confidence,
			Reason:     rec.Reason,
			CheckedAt:  rec.CheckedAt,
		}
		if err := s.publisher.PublishAttendance(ctx, ev); err != nil {
			logger.Error("publish attendance event", zap.Error(err))
		}
	}

	logger.Info("check-in verified", zap.Bool("matched", result.Matched), zap.String("outcome", result.Outcome()))
	return result, nil
}

func (s *Service) verifyWithRetry(ctx context.Context, logger *zap.Logger, capture []byte, ref verify.Source) (*verify.Result, error) {
	backoff := s.retry.InitialBackoff
	attempts := s.retry.Retries + 1

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.retry.MaxBackoff {
				backoff = next
			}
		}

		var result *verify.Result
		result, err = s.verifier.Verify(ctx, capture, ref)
		if err == nil {
			if attempt > 0 {
				logger.Info("verification succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return result, nil
		}

		var fetchErr *verify.RemoteFetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Transient() || attempt == attempts-1 {
			return nil, err
		}
		logger.Warn("transient reference fetch failure", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return nil, err
}
