package cache

import (
	"sort"
	"strings"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

// Kind names the family of a cached query
type Kind string

const (
	KindCollection Kind = "collection"
	KindImage      Kind = "image"
	KindTags       Kind = "tags"
	KindStats      Kind = "stats"
)

// Key is the identity of one cached query
type Key struct {
	Kind Kind
	Arg  string
}

func (k Key) String() string {
	if k.Arg == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Arg
}

// CollectionKey identifies the collection filtered by tags.
// Tag order does not matter; no tags means the unfiltered collection.
func CollectionKey(tags []string) Key {
	canonical := library.ParseTags(strings.Join(tags, ","))
	sort.Strings(canonical)
	return Key{Kind: KindCollection, Arg: strings.Join(canonical, ",")}
}

// ImageKey identifies a single image record
func ImageKey(id string) Key {
	return Key{Kind: KindImage, Arg: id}
}

// TagsKey identifies the tag frequency map
func TagsKey() Key {
	return Key{Kind: KindTags}
}

// StatsKey identifies the library statistics
func StatsKey() Key {
	return Key{Kind: KindStats}
}

// FilterTags returns the tag filter of a collection key
func (k Key) FilterTags() []string {
	if k.Kind != KindCollection || k.Arg == "" {
		return nil
	}
	return strings.Split(k.Arg, ",")
}
