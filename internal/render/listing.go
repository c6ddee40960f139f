package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/liminalpurple/visionary-vault/internal/gallery"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func star(img library.Image) string {
	if img.IsFavorite() {
		return "★"
	}
	return ""
}

// Table writes one line per tile
func Table(w io.Writer, tiles []gallery.Tile) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tFAV\tSIZE\tSPAN\tCREATED\tTAGS")
	for _, tile := range tiles {
		img := tile.Image
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			img.ID, star(img), img.ImageSize, tile.Span, img.CreatedAt, strings.Join(img.TagList(), ", "))
	}
	return tw.Flush()
}

// Detail writes every field of one record
func Detail(w io.Writer, img library.Image, thumbnailURL string) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID:\t%s\n", img.ID)
	fmt.Fprintf(tw, "File:\t%s\n", img.Filename)
	fmt.Fprintf(tw, "Created:\t%s\n", img.CreatedAt)
	fmt.Fprintf(tw, "Size:\t%s\n", img.ImageSize)
	fmt.Fprintf(tw, "Favorite:\t%t\n", img.IsFavorite())
	fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(img.TagList(), ", "))
	fmt.Fprintf(tw, "Prompt:\t%s\n", img.Prompt)
	if img.Loras != "" {
		fmt.Fprintf(tw, "LoRAs:\t%s\n", img.Loras)
	}
	if img.GenSettings != "" {
		fmt.Fprintf(tw, "Settings:\t%s\n", img.GenSettings)
	}
	fmt.Fprintf(tw, "Hash:\t%s\n", img.Hash)
	if thumbnailURL != "" {
		fmt.Fprintf(tw, "Thumbnail:\t%s\n", thumbnailURL)
	}
	return tw.Flush()
}

// Tags writes tag frequency pairs, most used first
func Tags(w io.Writer, pairs []library.TagCount) error {
	if len(pairs) == 0 {
		_, err := fmt.Fprintln(w, "No tags found")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TAG\tIMAGES")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s\t%d\n", p.Tag, p.Count)
	}
	return tw.Flush()
}

// Stats writes the library summary
func Stats(w io.Writer, s library.Stats) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Total images:\t%d\n", s.TotalImages)
	fmt.Fprintf(tw, "Tagged:\t%d (%.1f%%)\n", s.TaggedImages, s.TaggedPercent())
	fmt.Fprintf(tw, "Untagged:\t%d\n", s.UntaggedImages)
	if len(s.TopTags) > 0 {
		fmt.Fprintln(tw, "Top tags:\t")
		for _, tc := range s.TopTags {
			fmt.Fprintf(tw, "  %s\t%d\n", tc.Tag, tc.Count)
		}
	}
	return tw.Flush()
}
