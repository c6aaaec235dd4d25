package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/observability"
)

// Fetcher retrieves the bytes behind a reference URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher fetches reference images with a bounded timeout and body size.
type HTTPFetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *zap.Logger
}

// NewHTTPFetcher returns a fetcher. A nil client uses a dedicated
// http.Client; timeout bounds the whole request including the body read.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, maxBytes int64, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				MaxIdleConnsPerHost:   8,
			},
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		client:   client,
		timeout:  timeout,
		maxBytes: maxBytes,
		logger:   logger.Named("fetch"),
	}
}

// Fetch issues a GET and returns the body. Transport failures, timeouts,
// non-2xx statuses and oversize bodies are reported as *RemoteFetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		observability.RemoteFetches.WithLabelValues("invalid").Inc()
		return nil, &RemoteFetchError{URL: rawURL, Err: stripURL(err)}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		observability.RemoteFetches.WithLabelValues("transport").Inc()
		err = stripURL(err)
		f.logger.Warn("reference fetch failed", zap.Error(err))
		return nil, &RemoteFetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	observability.RemoteFetches.WithLabelValues(statusClass(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		f.logger.Warn("reference fetch rejected", zap.Int("status", resp.StatusCode))
		return nil, &RemoteFetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, &RemoteFetchError{URL: rawURL, Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// stripURL drops the *url.Error wrapper, whose message repeats the
// (possibly presigned) request URL.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
