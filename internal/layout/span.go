// Package layout assigns every image a vertical span in grid row-units so a
// fixed-column masonry grid can pack variable-height items without gaps.
package layout

import (
	"errors"
	"fmt"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

// RowUnits is the span of a square image
const RowUnits = 30

// DefaultSpan is used whenever the dimensions are unusable
const DefaultSpan = RowUnits

// ErrInvalidDimension is returned for a width or height that is not positive
var ErrInvalidDimension = errors.New("invalid dimension")

// Span returns ceil(height/width * RowUnits)
func Span(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}
	w, h := int64(width), int64(height)
	return int((h*RowUnits + w - 1) / w), nil
}

// SpanOrDefault is Span with the default span for invalid dimensions
func SpanOrDefault(width, height int) int {
	span, err := Span(width, height)
	if err != nil {
		return DefaultSpan
	}
	return span
}

// SpanForSize computes the span from a "<w>x<h>" descriptor, falling back to
// the default span when the descriptor does not parse
func SpanForSize(desc string) int {
	w, h, err := library.ParseSize(desc)
	if err != nil {
		return DefaultSpan
	}
	return SpanOrDefault(w, h)
}
