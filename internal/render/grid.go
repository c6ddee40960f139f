// Package render draws gallery state on a terminal: a masonry grid of tiles
// plus plain listings of records, tags and statistics.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/layout"
)

// CellWidth is the width of one grid column
const CellWidth = 28

const (
	gutter        = 2
	unitsPerLine  = 10 // span units per terminal line
	fallbackWidth = 80
)

// TerminalWidth returns the width of f if it is a terminal, otherwise fallback
func TerminalWidth(f *os.File, fallback int) int {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return fallback
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Columns returns how many grid columns fit in width, at least one
func Columns(width int) int {
	if width <= 0 {
		width = fallbackWidth
	}
	return max(1, (width+gutter)/(CellWidth+gutter))
}

// Pack distributes tiles over columns in order, each tile going to the
// column with the smallest total span so far (leftmost on ties)
func Pack(tiles []gallery.Tile, columns int) [][]gallery.Tile {
	columns = max(1, columns)
	cols := make([][]gallery.Tile, columns)
	heights := make([]int, columns)
	for _, tile := range tiles {
		shortest := 0
		for i := 1; i < columns; i++ {
			if heights[i] < heights[shortest] {
				shortest = i
			}
		}
		cols[shortest] = append(cols[shortest], tile)
		heights[shortest] += tile.Span
	}
	return cols
}

// Lines is the number of terminal lines a tile of span occupies, borders included
func Lines(span int) int {
	if span <= 0 {
		span = layout.DefaultSpan
	}
	return max(3, (span+unitsPerLine-1)/unitsPerLine)
}

// tileBox renders a tile as a fixed-width box of Lines(span) lines
func tileBox(tile gallery.Tile) []string {
	inner := CellWidth - 4
	n := Lines(tile.Span)
	border := "+" + strings.Repeat("-", inner+2) + "+"

	body := []string{tile.Image.ID}
	if tile.Image.IsFavorite() {
		body[0] = "★ " + body[0]
	}
	if tags := tile.Image.TagList(); len(tags) > 0 {
		body = append(body, strings.Join(tags, ", "))
	}
	body = append(body, tile.Image.ImageSize)

	lines := make([]string, 0, n)
	lines = append(lines, border)
	for i := 0; i < n-2; i++ {
		text := ""
		if i < len(body) {
			text = body[i]
		}
		lines = append(lines, "| "+pad(text, inner)+" |")
	}
	return append(lines, border)
}

// pad truncates or right-pads s to exactly width runes
func pad(s string, width int) string {
	if utf8.RuneCountInString(s) > width {
		r := []rune(s)
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-utf8.RuneCountInString(s))
}

// Grid writes the view as a masonry grid with the given number of columns
func Grid(w io.Writer, v gallery.View, columns int) error {
	if _, err := fmt.Fprintln(w, v.Title); err != nil {
		return err
	}
	if v.Err != nil {
		if _, err := fmt.Fprintf(w, "(showing cached results: %v)\n", v.Err); err != nil {
			return err
		}
	}
	if len(v.Tiles) == 0 {
		_, err := fmt.Fprintf(w, "\n%s\n", v.Empty)
		return err
	}

	cols := Pack(v.Tiles, columns)
	rendered := make([][]string, len(cols))
	height := 0
	for i, col := range cols {
		for _, tile := range col {
			rendered[i] = append(rendered[i], tileBox(tile)...)
		}
		height = max(height, len(rendered[i]))
	}

	blank := strings.Repeat(" ", CellWidth)
	for row := 0; row < height; row++ {
		var sb strings.Builder
		for i := range rendered {
			if i > 0 {
				sb.WriteString(strings.Repeat(" ", gutter))
			}
			if row < len(rendered[i]) {
				sb.WriteString(rendered[i][row])
			} else {
				sb.WriteString(blank)
			}
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%d image(s)\n", len(v.Tiles))
	return err
}
