// Package edit implements the metadata edit session: load one image record
// into a local draft, let the user change it, and save the draft back.
package edit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/liminalpurple/visionary-vault/internal/cache"
	"github.com/liminalpurple/visionary-vault/internal/library"
)

var (
	// ErrNotReady is returned when the draft is edited or saved outside the Ready state
	ErrNotReady = errors.New("edit session is not ready")
	// ErrBusy is returned when a save is already in flight
	ErrBusy = errors.New("save already in progress")
	// ErrSuperseded is returned when the session moved to another image, or was
	// closed, before a load finished
	ErrSuperseded = errors.New("edit session superseded")
)

// State is the lifecycle state of a session
type State int

const (
	Idle State = iota
	Loading
	Ready
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Draft is the locally edited copy of a record's editable fields
type Draft struct {
	Tags     string
	Prompt   string
	Favorite bool
}

// DraftOf returns the draft matching img
func DraftOf(img library.Image) Draft {
	return Draft{
		Tags:     library.FormatTags(img.TagList()),
		Prompt:   img.Prompt,
		Favorite: img.IsFavorite(),
	}
}

// Patch returns the full patch carrying every draft field
func (d Draft) Patch() library.Patch {
	tags := library.FormatTags(library.ParseTags(d.Tags))
	prompt := d.Prompt
	favorite := 0
	if d.Favorite {
		favorite = 1
	}
	return library.Patch{Tags: &tags, Prompt: &prompt, Favorite: &favorite}
}

// Patcher sends a metadata patch to the library
type Patcher interface {
	PatchImage(ctx context.Context, id string, patch library.Patch) error
}

// Session edits one image at a time. Opening another image discards the
// previous draft.
type Session struct {
	mu     sync.Mutex
	cache  *cache.Cache
	remote Patcher
	log    logrus.FieldLogger

	state  State
	saving bool   // a patch is in flight, even after Close
	token  uint64 // bumped by Open and Close; stale loads compare against it
	id     string
	record library.Image
	draft  Draft
	err    error
}

// NewSession creates an idle session reading through c and saving through remote
func NewSession(c *cache.Cache, remote Patcher, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		cache:  c,
		remote: remote,
		log:    log.WithField("component", "edit"),
	}
}

// Open loads image id into a fresh draft. A load overtaken by another Open
// or by Close returns ErrSuperseded and changes nothing. An unknown id
// returns library.ErrNotFound and leaves the session Idle. While a save is
// in flight Open returns ErrBusy.
func (s *Session) Open(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrBusy
	}
	s.token++
	token := s.token
	s.state = Loading
	s.id = id
	s.record = library.Image{}
	s.draft = Draft{}
	s.err = nil
	s.mu.Unlock()

	v, err := s.cache.Load(ctx, cache.ImageKey(id))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		s.log.WithField("image_id", id).Debug("Discarding superseded load")
		return ErrSuperseded
	}

	img, ok := v.(library.Image)
	if err != nil && (!ok || errors.Is(err, library.ErrNotFound)) {
		s.state = Idle
		s.id = ""
		s.err = err
		return fmt.Errorf("failed to load image %s: %w", id, err)
	}
	if !ok {
		s.state = Idle
		s.id = ""
		s.err = fmt.Errorf("unexpected cached value %T for image %s", v, id)
		return s.err
	}

	// a failed refetch with a previous value still opens the editor
	s.record = img
	s.draft = DraftOf(img)
	s.state = Ready
	s.err = err
	s.log.WithField("image_id", id).Debug("Edit session ready")
	return nil
}

// Close discards the draft and returns to Idle. A load in flight is superseded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token++
	s.state = Idle
	s.id = ""
	s.record = library.Image{}
	s.draft = Draft{}
	s.err = nil
}

func (s *Session) editDraft(fn func(*Draft)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready {
		return fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	fn(&s.draft)
	return nil
}

// EditTags replaces the draft's tag text
func (s *Session) EditTags(text string) error {
	return s.editDraft(func(d *Draft) { d.Tags = text })
}

// AddTag appends a tag to the draft unless already present
func (s *Session) AddTag(tag string) error {
	if err := library.ValidateTag(tag); err != nil {
		return err
	}
	return s.editDraft(func(d *Draft) {
		d.Tags = library.FormatTags(append(library.ParseTags(d.Tags), tag))
	})
}

// RemoveTag drops a tag from the draft
func (s *Session) RemoveTag(tag string) error {
	return s.editDraft(func(d *Draft) {
		var kept []string
		for _, t := range library.ParseTags(d.Tags) {
			if t != tag {
				kept = append(kept, t)
			}
		}
		d.Tags = library.FormatTags(kept)
	})
}

// EditPrompt replaces the draft's prompt
func (s *Session) EditPrompt(text string) error {
	return s.editDraft(func(d *Draft) { d.Prompt = text })
}

// ToggleFavorite flips the draft's favorite flag
func (s *Session) ToggleFavorite() error {
	return s.editDraft(func(d *Draft) { d.Favorite = !d.Favorite })
}

// Save sends the whole draft as one patch. On success the cached record is
// updated and every view depending on the image is invalidated. On failure
// the draft and the cached record are left as they were and Err reports the
// failure.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.saving:
		s.mu.Unlock()
		return ErrBusy
	case s.state == Ready:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}
	s.state = Saving
	s.saving = true
	token := s.token
	id := s.id
	record := s.record
	patch := s.draft.Patch()
	s.mu.Unlock()

	log := s.log.WithField("image_id", id)
	err := s.remote.PatchImage(ctx, id, patch)

	if err == nil {
		updated := patch.Apply(record)
		s.cache.UpdateImage(updated)
		s.cache.InvalidateImage(id)
		log.Info("Saved image metadata")

		s.mu.Lock()
		s.saving = false
		if s.token == token {
			s.record = updated
			s.draft = DraftOf(updated)
			s.state = Ready
			s.err = nil
		}
		s.mu.Unlock()
		return nil
	}

	log.WithError(err).Warn("Failed to save image metadata, keeping draft")
	s.mu.Lock()
	s.saving = false
	if s.token == token {
		s.state = Ready
		s.err = err
	}
	s.mu.Unlock()
	return fmt.Errorf("failed to save image %s: %w", id, err)
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the image being edited, empty when Idle
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Draft returns a copy of the draft
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Record returns the canonical record the draft started from
func (s *Session) Record() (library.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.state == Ready || s.state == Saving
}

// Err returns the error of the last failed load or save
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dirty reports whether the draft differs from the record
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready && s.state != Saving {
		return false
	}
	d := s.draft
	d.Tags = library.FormatTags(library.ParseTags(d.Tags))
	return d != DraftOf(s.record)
}
