package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/attendance/internal/verify"
)

type Verifier interface {
	Verify(ctx context.Context, capture []byte, reference verify.Source) (*verify.Result, error)
}

type VerifyHandler struct {
	verifier  Verifier
	maxUpload int64
}

// NewVerifyHandler returns a handler; a nil verifier answers 503.
func NewVerifyHandler(v Verifier, maxUpload int64) *VerifyHandler {
	return &VerifyHandler{verifier: v, maxUpload: maxUpload}
}

// Verify compares the "capture" upload with either a "reference" upload or
// the image at "reference_url".
func (h *VerifyHandler) Verify(c *gin.Context) {
	if h.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face verification unavailable"})
		return
	}

	capture, _, err := readFormFile(c, "capture", h.maxUpload)
	if err != nil {
		formFileError(c, "capture", err)
		return
	}

	refURL := strings.TrimSpace(c.PostForm("reference_url"))
	refData, _, err := readFormFile(c, "reference", h.maxUpload)
	hasFile := err == nil
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		formFileError(c, "reference", err)
		return
	}

	var ref verify.Source
	switch {
	case hasFile && refURL != "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either reference or reference_url, not both"})
		return
	case hasFile:
		ref = verify.Bytes(refData)
	case refURL != "":
		if !strings.HasPrefix(refURL, "http://") && !strings.HasPrefix(refURL, "https://") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_url must be http or https"})
			return
		}
		ref = verify.URL(refURL)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference or reference_url is required"})
		return
	}

	result, err := h.verifier.Verify(c.Request.Context(), capture, ref)
	if err != nil {
		writeVerifyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
