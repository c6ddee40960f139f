// Package filter holds the user's current tag selection and favorites toggle.
package filter

import (
	"slices"
	"strings"

	"github.com/liminalpurple/visionary-vault/internal/cache"
)

// State is the gallery filter of one UI session. The zero value selects nothing.
type State struct {
	tags          []string
	favoritesOnly bool
}

// ToggleTag removes tag from the selection if present, otherwise adds it
func (s *State) ToggleTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	if i := slices.Index(s.tags, tag); i >= 0 {
		s.tags = slices.Delete(s.tags, i, i+1)
		return
	}
	s.tags = append(s.tags, tag)
}

// Clear empties the tag selection. The favorites flag is kept.
func (s *State) Clear() {
	s.tags = nil
}

// SetFavoritesOnly sets the favorites-only flag
func (s *State) SetFavoritesOnly(on bool) {
	s.favoritesOnly = on
}

// Tags returns the selected tags in selection order
func (s *State) Tags() []string {
	return slices.Clone(s.tags)
}

// Has reports whether tag is selected
func (s *State) Has(tag string) bool {
	return slices.Contains(s.tags, strings.TrimSpace(tag))
}

// FavoritesOnly reports the favorites-only flag
func (s *State) FavoritesOnly() bool {
	return s.favoritesOnly
}

// Key returns the collection cache key for the current selection
func (s *State) Key() cache.Key {
	return cache.CollectionKey(s.tags)
}
