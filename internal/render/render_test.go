package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

func tile(id string, span int) gallery.Tile {
	return gallery.Tile{Image: library.Image{ID: id, ImageSize: "1x1"}, Span: span}
}

func ids(col []gallery.Tile) []string {
	out := make([]string, 0, len(col))
	for _, t := range col {
		out = append(out, t.Image.ID)
	}
	return out
}

func TestPack_ShortestColumn(t *testing.T) {
	tiles := []gallery.Tile{tile("a", 45), tile("b", 30), tile("c", 23), tile("d", 30), tile("e", 10)}

	cols := Pack(tiles, 2)
	require.Len(t, cols, 2)
	// a->0 (45), b->1 (30), c->1 (53), d->0 (75), e->1 (63)
	assert.Equal(t, []string{"a", "d"}, ids(cols[0]))
	assert.Equal(t, []string{"b", "c", "e"}, ids(cols[1]))

	single := Pack(tiles, 0)
	require.Len(t, single, 1)
	assert.Len(t, single[0], 5)
}

func TestColumns(t *testing.T) {
	assert.Equal(t, 1, Columns(10))
	assert.Equal(t, 2, Columns(80))
	assert.Equal(t, 4, Columns(120))
	assert.Equal(t, 2, Columns(0))
}

func TestLines(t *testing.T) {
	assert.Equal(t, 3, Lines(30))
	assert.Equal(t, 5, Lines(45))
	assert.Equal(t, 3, Lines(5))
	assert.Equal(t, 3, Lines(0))
}

func TestGrid(t *testing.T) {
	v := gallery.View{
		Title: "All Images",
		Tiles: []gallery.Tile{
			{Image: library.Image{ID: "tall", ImageSize: "512x768", Tags: "cat", Favorite: 1}, Span: 45},
			{Image: library.Image{ID: "wide", ImageSize: "1024x768"}, Span: 23},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Grid(&buf, v, 2))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "All Images\n"))
	assert.Contains(t, out, "★ tall")
	assert.Contains(t, out, "wide")
	assert.Contains(t, out, "2 image(s)")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 2*CellWidth+gutter)
	}
}

func TestGrid_Empty(t *testing.T) {
	var buf bytes.Buffer
	v := gallery.View{Title: "Favorite Images", Empty: "You don't have any favorite images yet.", Err: errors.New("offline")}
	require.NoError(t, Grid(&buf, v, 3))
	assert.Contains(t, buf.String(), "You don't have any favorite images yet.")
	assert.Contains(t, buf.String(), "offline")
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", 4))
	assert.Equal(t, "abc…", pad("abcdef", 4))
}

func TestListings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Tags(&buf, []library.TagCount{{Tag: "cat", Count: 2}}))
	assert.Contains(t, buf.String(), "cat")

	buf.Reset()
	require.NoError(t, Tags(&buf, nil))
	assert.Equal(t, "No tags found\n", buf.String())

	buf.Reset()
	require.NoError(t, Stats(&buf, library.Stats{TotalImages: 4, TaggedImages: 1, UntaggedImages: 3,
		TopTags: []library.TagCount{{Tag: "cat", Count: 1}}}))
	assert.Contains(t, buf.String(), "25.0%")

	buf.Reset()
	require.NoError(t, Detail(&buf, library.Image{ID: "x", Prompt: "sunset", Loras: "style:0.8"}, "http://h/t.png"))
	assert.Contains(t, buf.String(), "sunset")
	assert.Contains(t, buf.String(), "style:0.8")
	assert.Contains(t, buf.String(), "http://h/t.png")

	buf.Reset()
	require.NoError(t, Table(&buf, []gallery.Tile{tile("x", 30)}))
	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "x")
}
