package fetcher

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// isGzip reports whether a payload looks gzip-compressed, by URL suffix or
// magic bytes. Declared content type is untrusted and ignored.
func isGzip(url string, body []byte) bool {
	if strings.HasSuffix(strings.ToLower(strings.SplitN(url, "?", 2)[0]), ".gz") {
		return true
	}
	return len(body) >= 2 && bytes.Equal(body[:2], gzipMagic)
}

// maybeDecompress transparently gunzips a payload, bounding the inflated
// size so a compression bomb cannot exceed the page cap.
func maybeDecompress(url string, body []byte, maxBytes int64) ([]byte, error) {
	if !isGzip(url, body) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	if int64(len(inflated)) > maxBytes {
		return nil, errPageTooLarge
	}
	return inflated, nil
}
