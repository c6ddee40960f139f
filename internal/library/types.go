// Package library defines the image library data model shared by the gallery
// client and the local library service, plus the SQLite store behind the service.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when an image id is not in the library
	ErrNotFound = errors.New("image not found")
	// ErrInvalidSize is returned when a size descriptor is not "<w>x<h>" with positive integers
	ErrInvalidSize = errors.New("invalid size descriptor")
	// ErrInvalidPatch is returned when a patch carries no fields or an out-of-range value
	ErrInvalidPatch = errors.New("invalid patch")
)

// Thumbnails holds the path fragments of the three thumbnail tiers
type Thumbnails struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// Image represents one record of the library
type Image struct {
	ID          string     `json:"id"`                     // Opaque identifier
	Filename    string     `json:"filename"`               // Original file name
	CreatedAt   string     `json:"created_at"`             // Creation timestamp as sent by the service
	Prompt      string     `json:"prompt"`                 // Free-text generation prompt
	Loras       string     `json:"loras,omitempty"`        // LoRA descriptor, if any
	GenSettings string     `json:"gen_settings,omitempty"` // Generation settings text, if any
	ImageSize   string     `json:"image_size"`             // "<width>x<height>"
	Tags        string     `json:"tags"`                   // Comma-separated tags
	Favorite    int        `json:"favorite"`               // 0 or 1
	Compressed  int        `json:"compressed"`             // 0 or 1
	Hash        string     `json:"hash"`                   // Content hash
	Thumbnails  Thumbnails `json:"thumbnails"`
}

// Size parses the size descriptor into width and height
func (img Image) Size() (int, int, error) {
	return ParseSize(img.ImageSize)
}

// TagList returns the trimmed, non-empty tags of the image
func (img Image) TagList() []string {
	return ParseTags(img.Tags)
}

// HasAllTags reports whether the image carries every tag in tags.
// An empty tags slice matches every image.
func (img Image) HasAllTags(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	own := make(map[string]struct{})
	for _, t := range img.TagList() {
		own[t] = struct{}{}
	}
	for _, t := range tags {
		if _, ok := own[strings.TrimSpace(t)]; !ok {
			return false
		}
	}
	return true
}

// IsFavorite reports whether the favorite flag is set
func (img Image) IsFavorite() bool {
	return img.Favorite == 1
}

// Thumbnail returns the path fragment for a size tier ("small", "medium" or "large")
func (img Image) Thumbnail(tier string) string {
	switch tier {
	case "small":
		return img.Thumbnails.Small
	case "large":
		return img.Thumbnails.Large
	default:
		return img.Thumbnails.Medium
	}
}

// ParseSize parses "<width>x<height>" into two positive integers
func ParseSize(desc string) (int, int, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(desc), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, desc)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, desc)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSize, desc)
	}
	return width, height, nil
}

// FormatSize builds a size descriptor from width and height
func FormatSize(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// Patch is a partial metadata update. Nil fields are left unchanged.
type Patch struct {
	Tags     *string `json:"tags,omitempty"`
	Prompt   *string `json:"prompt,omitempty"`
	Favorite *int    `json:"favorite,omitempty"`
}

// Validate checks that the patch changes something and that favorite is 0 or 1
func (p Patch) Validate() error {
	if p.Tags == nil && p.Prompt == nil && p.Favorite == nil {
		return fmt.Errorf("%w: no fields", ErrInvalidPatch)
	}
	if p.Favorite != nil && *p.Favorite != 0 && *p.Favorite != 1 {
		return fmt.Errorf("%w: favorite must be 0 or 1, got %d", ErrInvalidPatch, *p.Favorite)
	}
	return nil
}

// Apply returns a copy of img with the patch applied
func (p Patch) Apply(img Image) Image {
	if p.Tags != nil {
		img.Tags = *p.Tags
	}
	if p.Prompt != nil {
		img.Prompt = *p.Prompt
	}
	if p.Favorite != nil {
		img.Favorite = *p.Favorite
	}
	return img
}

// TagCount is one (tag, count) pair. It travels as a two-element JSON array.
type TagCount struct {
	Tag   string
	Count int
}

// MarshalJSON encodes the pair as ["tag", count]
func (tc TagCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{tc.Tag, tc.Count})
}

// UnmarshalJSON decodes ["tag", count]
func (tc *TagCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to unmarshal tag pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("tag pair has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &tc.Tag); err != nil {
		return fmt.Errorf("failed to unmarshal tag name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &tc.Count); err != nil {
		return fmt.Errorf("failed to unmarshal tag count: %w", err)
	}
	return nil
}

// Stats summarises the whole library
type Stats struct {
	TotalImages    int        `json:"total_images"`
	TaggedImages   int        `json:"tagged_images"`
	UntaggedImages int        `json:"untagged_images"`
	TopTags        []TagCount `json:"top_tags"`
}

// Validate checks the summary invariants: tagged + untagged = total,
// top tags in descending count order, no duplicate tags
func (s Stats) Validate() error {
	if s.TaggedImages+s.UntaggedImages != s.TotalImages {
		return fmt.Errorf("tagged (%d) + untagged (%d) != total (%d)", s.TaggedImages, s.UntaggedImages, s.TotalImages)
	}
	seen := make(map[string]bool, len(s.TopTags))
	for i, tc := range s.TopTags {
		if seen[tc.Tag] {
			return fmt.Errorf("duplicate top tag %q", tc.Tag)
		}
		seen[tc.Tag] = true
		if i > 0 && s.TopTags[i-1].Count < tc.Count {
			return fmt.Errorf("top tags not in descending order at %q", tc.Tag)
		}
	}
	return nil
}

// TaggedPercent returns the share of tagged images in percent
func (s Stats) TaggedPercent() float64 {
	if s.TotalImages == 0 {
		return 0
	}
	return float64(s.TaggedImages) / float64(s.TotalImages) * 100
}

// EventImageUpdated is broadcast after an image's metadata changed
const EventImageUpdated = "image.updated"

// Event is a change notification pushed by the library service
type Event struct {
	ID      string `json:"id"`       // Unique event id
	Type    string `json:"type"`     // Event type, e.g. EventImageUpdated
	ImageID string `json:"image_id"` // Affected image, if any
}
