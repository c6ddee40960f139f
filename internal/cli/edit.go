package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liminalpurple/visionary-vault/internal/edit"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

// clearField is the interactive answer that empties a field
const clearField = "-"

type editFlags struct {
	tags           string
	add            []string
	remove         []string
	prompt         string
	toggleFavorite bool
}

// NewEditCmd creates the edit command
func NewEditCmd() *cobra.Command {
	var f editFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an image's tags, prompt or favorite flag",
		Long: `Edit the metadata of one image and save it back to the library.

Without flags the command asks for each field in turn, showing the current
value; pressing enter keeps it and "-" clears it. With flags the changes are applied and saved
without prompting. All changes are sent together in one update. When saving
fails nothing in the library changes.`,
		Example: `  vault edit 42
  vault edit 42 --add sunset --remove draft
  vault edit 42 --tags "cat,portrait" --toggle-favorite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			session := a.gallery.Session()
			if err := session.Open(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, library.ErrNotFound) {
					return fmt.Errorf("image %s not found", args[0])
				}
				return err
			}
			defer session.Close()

			interactive := !cmd.Flags().Changed("tags") && !cmd.Flags().Changed("prompt") &&
				len(f.add) == 0 && len(f.remove) == 0 && !f.toggleFavorite

			if interactive {
				err = promptDraft(session, cmd.InOrStdin(), cmd.OutOrStdout())
			} else {
				err = applyFlags(session, cmd, f)
			}
			if err != nil {
				return err
			}

			return saveDraft(cmd.Context(), session, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.tags, "tags", "", "replace all tags (comma-separated)")
	cmd.Flags().StringSliceVar(&f.add, "add", nil, "add tags")
	cmd.Flags().StringSliceVar(&f.remove, "remove", nil, "remove tags")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "replace the prompt")
	cmd.Flags().BoolVar(&f.toggleFavorite, "toggle-favorite", false, "flip the favorite flag")
	return cmd
}

func applyFlags(s *edit.Session, cmd *cobra.Command, f editFlags) error {
	if cmd.Flags().Changed("tags") {
		if err := s.EditTags(f.tags); err != nil {
			return err
		}
	}
	for _, tag := range f.add {
		if err := s.AddTag(strings.TrimSpace(tag)); err != nil {
			return fmt.Errorf("invalid tag %q: %w", tag, err)
		}
	}
	for _, tag := range f.remove {
		if err := s.RemoveTag(strings.TrimSpace(tag)); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("prompt") {
		if err := s.EditPrompt(f.prompt); err != nil {
			return err
		}
	}
	if f.toggleFavorite {
		return s.ToggleFavorite()
	}
	return nil
}

// promptDraft asks for each field on in, keeping the current value on an empty answer
func promptDraft(s *edit.Session, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	draft := s.Draft()

	ask := func(label, current string) (string, error) {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimSpace(line), nil
	}

	tags, err := ask("Tags", draft.Tags)
	if err != nil {
		return err
	}
	if value, ok := answer(tags); ok {
		if err := s.EditTags(value); err != nil {
			return err
		}
	}

	prompt, err := ask("Prompt", draft.Prompt)
	if err != nil {
		return err
	}
	if value, ok := answer(prompt); ok {
		if err := s.EditPrompt(value); err != nil {
			return err
		}
	}

	current := "n"
	if draft.Favorite {
		current = "y"
	}
	fav, err := ask("Favorite (y/n)", current)
	if err != nil {
		return err
	}
	switch strings.ToLower(fav) {
	case "y", "yes":
		if !draft.Favorite {
			return s.ToggleFavorite()
		}
	case "n", "no":
		if draft.Favorite {
			return s.ToggleFavorite()
		}
	}
	return nil
}

// answer maps a prompt reply to the new field value; ok is false for "keep"
func answer(reply string) (string, bool) {
	switch reply {
	case "":
		return "", false
	case clearField:
		return "", true
	default:
		return reply, true
	}
}

func saveDraft(ctx context.Context, s *edit.Session, out io.Writer) error {
	if !s.Dirty() {
		_, err := fmt.Fprintln(out, "No changes.")
		return err
	}
	if err := s.Save(ctx); err != nil {
		return err
	}

	img, _ := s.Record()
	fmt.Fprintf(out, "Saved %s\n", img.ID)
	fmt.Fprintf(out, "  Tags:     %s\n", strings.Join(img.TagList(), ", "))
	fmt.Fprintf(out, "  Prompt:   %s\n", img.Prompt)
	fmt.Fprintf(out, "  Favorite: %t\n", img.IsFavorite())
	return nil
}
