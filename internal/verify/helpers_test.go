package verify

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// solidImage returns a w×h image filled with c.
func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// fakeAnalyzer keys its answers on image width so capture and reference
// can be told apart in a single comparison.
type fakeAnalyzer struct {
	faces     map[int][]Detection
	embed     func(det Detection) []float32
	detectErr error
	embedErr  error
	panicOn   string
	calls     int
}

func (f *fakeAnalyzer) Detect(img image.Image) ([]Detection, error) {
	f.calls++
	if f.panicOn == "detect" {
		panic("boom")
	}
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.faces[img.Bounds().Dx()], nil
}

func (f *fakeAnalyzer) Embed(img image.Image, det Detection) ([]float32, error) {
	if f.panicOn == "embed" {
		panic("boom")
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if det.Embedding != nil {
		return det.Embedding, nil
	}
	return f.embed(det), nil
}

func face(x, y, size int, emb ...float32) Detection {
	return Detection{Box: image.Rect(x, y, x+size, y+size), Score: 0.9, Embedding: emb}
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
	url   string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	f.url = url
	return f.data, f.err
}
