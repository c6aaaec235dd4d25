package verify

import "errors"

// Source is a reference image: either raw bytes or a URL to fetch.
type Source struct {
	data []byte
	url  string
}

// Bytes wraps an uploaded image payload.
func Bytes(data []byte) Source { return Source{data: data} }

// URL wraps a fetchable image location such as a presigned object URL.
func URL(u string) Source { return Source{url: u} }

// IsURL reports whether the source must be fetched.
func (s Source) IsURL() bool { return s.url != "" }

// Location returns the URL of a remote source, or "".
func (s Source) Location() string { return s.url }

func (s Source) validate() error {
	if s.url != "" && s.data != nil {
		return errors.New("source has both bytes and url")
	}
	if s.url == "" && len(s.data) == 0 {
		return errors.New("source is empty")
	}
	return nil
}
