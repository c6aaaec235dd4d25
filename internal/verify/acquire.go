package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/your-org/attendance/internal/observability"
)

var errEmptyPayload = errors.New("empty payload")

// ErrTooManyPixels is wrapped by an ImageDecodeError when the header
// declares more pixels than the decoder is allowed to allocate.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// DefaultMaxPixels bounds decoded bitmaps to roughly 160 MB of RGBA.
const DefaultMaxPixels = 40_000_000

// Acquirer turns the capture payload and the reference source into bitmaps.
type Acquirer struct {
	fetcher   Fetcher
	maxPixels int64
}

// NewAcquirer returns an acquirer; maxPixels <= 0 means DefaultMaxPixels.
func NewAcquirer(fetcher Fetcher, maxPixels int64) *Acquirer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Acquirer{fetcher: fetcher, maxPixels: maxPixels}
}

// Acquire decodes the capture, then fetches (if needed) and decodes the
// reference. The capture is decoded first so a bad upload never costs a fetch.
func (a *Acquirer) Acquire(ctx context.Context, capture []byte, reference Source) (image.Image, image.Image, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("acquire").Observe(time.Since(start).Seconds())
	}()

	captureImg, err := Decode(RoleCapture, capture, a.maxPixels)
	if err != nil {
		return nil, nil, err
	}

	if err := reference.validate(); err != nil {
		return nil, nil, &ImageDecodeError{Role: RoleReference, Err: err}
	}

	refData := reference.data
	if reference.IsURL() {
		if a.fetcher == nil {
			return nil, nil, &RemoteFetchError{URL: reference.url, Err: errors.New("no fetcher configured")}
		}
		refData, err = a.fetcher.Fetch(ctx, reference.url)
		if err != nil {
			var fetchErr *RemoteFetchError
			if errors.As(err, &fetchErr) {
				return nil, nil, err
			}
			return nil, nil, &RemoteFetchError{URL: reference.url, Err: err}
		}
	}

	refImg, err := Decode(RoleReference, refData, a.maxPixels)
	if err != nil {
		return nil, nil, err
	}
	return captureImg, refImg, nil
}

// Decode parses an image payload in any registered format. The header is
// checked first so payloads declaring more than maxPixels are rejected
// before any bitmap is allocated; maxPixels <= 0 disables the check.
func Decode(role string, data []byte, maxPixels int64) (image.Image, error) {
	if len(data) == 0 {
		return nil, &ImageDecodeError{Role: role, Err: errEmptyPayload}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageDecodeError{Role: role, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &ImageDecodeError{Role: role, Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, &ImageDecodeError{Role: role, Err: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageDecodeError{Role: role, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &ImageDecodeError{Role: role, Err: fmt.Errorf("invalid dimensions %dx%d", b.Dx(), b.Dy())}
	}
	return img, nil
}
