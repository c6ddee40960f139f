package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/liminalpurple/visionary-vault/internal/layout"
)

// maxThumbnailBytes caps a thumbnail download
const maxThumbnailBytes = 32 << 20

// DownloadThumbnail downloads a thumbnail and returns its bytes and MIME type
func (c *Client) DownloadThumbnail(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ThumbnailURL(path), http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download thumbnail %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read thumbnail %s: %w", path, err)
	}

	return data, detectMimeType(data), nil
}

// ErrNotImage is returned when a downloaded thumbnail is not an image
var ErrNotImage = errors.New("thumbnail is not an image")

// ProbeThumbnail downloads a thumbnail and measures its pixel dimensions
func (c *Client) ProbeThumbnail(ctx context.Context, path string) (layout.Dimensions, error) {
	data, mime, err := c.DownloadThumbnail(ctx, path)
	if err != nil {
		return layout.Dimensions{}, err
	}
	if !strings.HasPrefix(mime, "image/") {
		return layout.Dimensions{}, fmt.Errorf("%s (%s): %w", path, mime, ErrNotImage)
	}
	return layout.Measure(bytes.NewReader(data))
}

// tiffSignatures cover the one decodable format http.DetectContentType misses
var tiffSignatures = [][]byte{[]byte("II*\x00"), []byte("MM\x00*")}

// detectMimeType sniffs the content type of a downloaded asset
func detectMimeType(data []byte) string {
	for _, sig := range tiffSignatures {
		if bytes.HasPrefix(data, sig) {
			return "image/tiff"
		}
	}
	return http.DetectContentType(data)
}
