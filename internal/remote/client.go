// Package remote provides the HTTP client for the image library service.
// Every failed call is reported to a Notifier and returned as an error.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

// StatusError is returned when the service answers with a non-2xx status
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: service returned status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the library service
type Client struct {
	httpClient *http.Client
	baseURL    string
	notifier   Notifier
	log        logrus.FieldLogger
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration, notifier Notifier, log logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid service URL %q: scheme must be http or https", baseURL)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		notifier:   notifier,
		log:        log.WithField("component", "remote"),
	}, nil
}

// BaseURL returns the service URL without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCollection returns the images carrying every tag in tags.
// No tags returns the whole collection.
func (c *Client) FetchCollection(ctx context.Context, tags []string) ([]library.Image, error) {
	path := "/api/images"
	if len(tags) > 0 {
		path += "?" + url.Values{"tags": {strings.Join(tags, ",")}}.Encode()
	}

	images := []library.Image{}
	if err := c.getJSON(ctx, path, &images); err != nil {
		c.fail("Failed to load images. Please try again.", err)
		return nil, err
	}
	return images, nil
}

// FetchImage returns one image record. An unknown id yields library.ErrNotFound.
func (c *Client) FetchImage(ctx context.Context, id string) (*library.Image, error) {
	var img library.Image
	if err := c.getJSON(ctx, "/api/image/"+url.PathEscape(id), &img); err != nil {
		c.fail("Failed to load image details. Please try again.", err)
		return nil, err
	}
	return &img, nil
}

// FetchTagFrequency returns the tag frequency map of the whole library
func (c *Client) FetchTagFrequency(ctx context.Context) (library.TagCounts, error) {
	counts := library.TagCounts{}
	if err := c.getJSON(ctx, "/api/tags", &counts); err != nil {
		c.fail("Failed to load tags. Please try again.", err)
		return nil, err
	}
	return counts, nil
}

// FetchStats returns the library statistics
func (c *Client) FetchStats(ctx context.Context) (*library.Stats, error) {
	var stats library.Stats
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		c.fail("Failed to load statistics. Please try again.", err)
		return nil, err
	}
	if err := stats.Validate(); err != nil {
		c.log.WithError(err).Warn("Service returned inconsistent statistics")
	}
	return &stats, nil
}

// PatchImage sends a metadata patch for one image
func (c *Client) PatchImage(ctx context.Context, id string, patch library.Patch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}

	path := "/api/image/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, path, nil); err != nil {
		c.fail("Failed to update image. Please try again.", err)
		return err
	}

	c.notifier.Notify(Notification{Level: LevelSuccess, Title: "Success", Description: "Image metadata updated successfully"})
	return nil
}

// ThumbnailURL turns a thumbnail path fragment into an absolute URL
func (c *Client) ThumbnailURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Fetcher adapts the client to the cache's read-through function
func (c *Client) Fetcher() cache.Fetcher {
	return func(ctx context.Context, key cache.Key) (any, error) {
		switch key.Kind {
		case cache.KindCollection:
			return c.FetchCollection(ctx, key.FilterTags())
		case cache.KindImage:
			img, err := c.FetchImage(ctx, key.Arg)
			if err != nil {
				return nil, err
			}
			return *img, nil
		case cache.KindTags:
			return c.FetchTagFrequency(ctx)
		case cache.KindStats:
			stats, err := c.FetchStats(ctx)
			if err != nil {
				return nil, err
			}
			return *stats, nil
		default:
			return nil, fmt.Errorf("unknown cache key kind %q", key.Kind)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := &StatusError{Method: req.Method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", library.ErrNotFound, statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// fail logs and notifies a failed call. Cancellation is not worth a notification.
func (c *Client) fail(message string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.log.WithError(err).Debug(message)
	c.notifier.Notify(Notification{Level: LevelError, Title: "Error", Description: message, Err: err})
}
