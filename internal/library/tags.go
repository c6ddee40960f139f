package library

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var tagPattern = regexp.MustCompile(`^[^,\s](?:[^,]*[^,\s])?$`)

// ParseTags splits a comma-separated tag string into trimmed, non-empty tags.
// Duplicates are dropped, first occurrence wins.
func ParseTags(text string) []string {
	parts := strings.Split(text, ",")
	tags := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// FormatTags joins tags into the canonical "a,b,c" form
func FormatTags(tags []string) string {
	return strings.Join(ParseTags(strings.Join(tags, ",")), ",")
}

// ValidateTag checks that a single tag is usable in a tag filter.
// Valid tags: 1-64 chars, no commas, no leading or trailing whitespace.
func ValidateTag(tag string) error {
	if len(tag) == 0 {
		return fmt.Errorf("tag cannot be empty")
	}
	if len(tag) > 64 {
		return fmt.Errorf("tag too long (max 64 characters)")
	}
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("tag must not contain commas or surrounding whitespace: %q", tag)
	}
	return nil
}

// TagCounts maps each tag to the number of images carrying it
type TagCounts map[string]int

// Sorted returns the pairs ordered by descending count, ties by tag name
func (tc TagCounts) Sorted() []TagCount {
	pairs := make([]TagCount, 0, len(tc))
	for tag, n := range tc {
		pairs = append(pairs, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Tag < pairs[j].Tag
	})
	return pairs
}

// Search returns the sorted pairs whose tag contains query, case-insensitively.
// An empty query returns every pair.
func (tc TagCounts) Search(query string) []TagCount {
	sorted := tc.Sorted()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sorted
	}
	matches := sorted[:0]
	for _, p := range sorted {
		if strings.Contains(strings.ToLower(p.Tag), q) {
			matches = append(matches, p)
		}
	}
	return matches
}

// CountTags tallies tag occurrences across images
func CountTags(images []Image) TagCounts {
	counts := make(TagCounts)
	for _, img := range images {
		for _, t := range img.TagList() {
			counts[t]++
		}
	}
	return counts
}

// Summarize computes the library statistics with the topN most used tags
func Summarize(images []Image, topN int) Stats {
	stats := Stats{TotalImages: len(images), TopTags: []TagCount{}}
	for _, img := range images {
		if len(img.TagList()) > 0 {
			stats.TaggedImages++
		}
	}
	stats.UntaggedImages = stats.TotalImages - stats.TaggedImages

	sorted := CountTags(images).Sorted()
	if topN >= 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}
	stats.TopTags = append(stats.TopTags, sorted...)
	return stats
}
