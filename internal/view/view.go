// Package view derives the sequence of images to render from the cached
// collection and the favorites toggle.
package view

import (
	"fmt"
	"strings"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

// Compose returns the images to render. The collection is already filtered
// by tags on the server; when favoritesOnly is set only favorites are kept,
// in their original order. The input is never modified.
func Compose(collection []library.Image, favoritesOnly bool) []library.Image {
	if !favoritesOnly {
		return collection
	}
	favorites := make([]library.Image, 0, len(collection))
	for _, img := range collection {
		if img.IsFavorite() {
			favorites = append(favorites, img)
		}
	}
	return favorites
}

// EmptyMessage explains an empty view
func EmptyMessage(tags []string, favoritesOnly bool) string {
	switch {
	case len(tags) > 0:
		return fmt.Sprintf("No images match the selected tags: %s", strings.Join(tags, ", "))
	case favoritesOnly:
		return "You don't have any favorite images yet."
	default:
		return "Your image collection is empty."
	}
}

// Title is the heading of the grid for the current filter
func Title(tags []string, favoritesOnly bool) string {
	title := "All Images"
	if favoritesOnly {
		title = "Favorite Images"
	}
	switch n := len(tags); n {
	case 0:
		return title
	case 1:
		return title + " • Filtered by 1 tag"
	default:
		return fmt.Sprintf("%s • Filtered by %d tags", title, n)
	}
}
