package verify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPFetcherOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "image/*" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), time.Second, 1024, nil)
	data, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}
}

func TestHTTPFetcherStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPFetcher(srv.Client(), time.Second, 1024, nil).Fetch(context.Background(), srv.URL)
			var rfe *RemoteFetchError
			if !errors.As(err, &rfe) {
				t.Fatalf("expected RemoteFetchError, got %v", err)
			}
			if rfe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d", rfe.StatusCode)
			}
			if rfe.Transient() != tt.transient {
				t.Errorf("Transient = %v, want %v", rfe.Transient(), tt.transient)
			}
		})
	}
}

func TestHTTPFetcherOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client(), time.Second, 16, nil).Fetch(context.Background(), srv.URL)
	var rfe *RemoteFetchError
	if !errors.As(err, &rfe) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
	if rfe.Transient() {
		t.Error("oversize body should not be transient")
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client(), 50*time.Millisecond, 1024, nil).Fetch(context.Background(), srv.URL)
	var rfe *RemoteFetchError
	if !errors.As(err, &rfe) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
	if !rfe.Transient() {
		t.Errorf("timeout should be transient: %v", err)
	}
}

func TestHTTPFetcherInvalidURL(t *testing.T) {
	_, err := NewHTTPFetcher(nil, time.Second, 1024, nil).Fetch(context.Background(), "://bad")
	var rfe *RemoteFetchError
	if !errors.As(err, &rfe) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
}

func TestRemoteFetchErrorMessageHidesURL(t *testing.T) {
	err := &RemoteFetchError{URL: "http://minio/x?X-Amz-Signature=secret", StatusCode: 404}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks url: %s", err)
	}
}

func TestHTTPFetcherTransportErrorHidesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL + "/ref.jpg?X-Amz-Signature=secret"
	srv.Close()

	_, err := NewHTTPFetcher(nil, time.Second, 1024, nil).Fetch(context.Background(), target)
	var fetchErr *RemoteFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected RemoteFetchError, got %v", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks the request URL: %v", err)
	}
}
