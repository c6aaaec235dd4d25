package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/verify"
)

var errTooLarge = errors.New("file too large")

// readFormFile returns the bytes and declared content type of a multipart
// field. Missing fields yield http.ErrMissingFile.
func readFormFile(c *gin.Context, field string, maxBytes int64) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, "", errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	return data, fh.Header.Get("Content-Type"), nil
}

func formFileError(c *gin.Context, field string, err error) {
	switch {
	case errors.Is(err, errTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " exceeds upload limit"})
	case errors.Is(err, http.ErrMissingFile):
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// verifyErrorStatus maps verification failures onto HTTP statuses.
func verifyErrorStatus(err error) (int, string) {
	var (
		decodeErr *verify.ImageDecodeError
		fetchErr  *verify.RemoteFetchError
		faceErr   *verify.FaceProcessingError
	)
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, decodeErr.Error()
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, fetchErr.Error()
	case errors.As(err, &faceErr):
		return http.StatusInternalServerError, "Processing error: " + faceErr.Error()
	case errors.Is(err, verify.ErrUnavailable):
		return http.StatusServiceUnavailable, "face verification unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "verification timed out"
	default:
		return http.StatusInternalServerError, "Processing error: " + err.Error()
	}
}

func writeVerifyError(c *gin.Context, err error) {
	status, msg := verifyErrorStatus(err)
	c.JSON(status, gin.H{"error": msg})
}
