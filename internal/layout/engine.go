package layout

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liminalpurple/visionary-vault/internal/library"
)

// DefaultSettleDelay is how long the engine waits after the last asset load
// before recomputing spans
const DefaultSettleDelay = 300 * time.Millisecond

// AssetDimensions reports that the rendered asset of an image finished loading
type AssetDimensions struct {
	ID     string
	Width  int
	Height int
}

type dims struct{ w, h int }

// Engine keeps the span of every image in the grid. Spans start from the
// declared size descriptor and are replaced by measured dimensions when the
// loaded asset disagrees with the declaration.
type Engine struct {
	mu       sync.Mutex
	declared map[string]dims
	measured map[string]dims
	spans    map[string]int
	pending  map[string]AssetDimensions
	settle   time.Duration
	log      logrus.FieldLogger
	onChange func(id string, span int)
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithOnChange registers a callback run for every span a flush changes
func WithOnChange(fn func(id string, span int)) EngineOption {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates an engine. A non-positive settle delay uses DefaultSettleDelay.
func NewEngine(settle time.Duration, opts ...EngineOption) *Engine {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	e := &Engine{
		declared: make(map[string]dims),
		measured: make(map[string]dims),
		spans:    make(map[string]int),
		pending:  make(map[string]AssetDimensions),
		settle:   settle,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", "layout")
	return e
}

// Declare records the declared size of img and returns its span. A span
// already corrected by a measurement is kept.
func (e *Engine) Declare(img library.Image) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, h, err := img.Size()
	if err != nil {
		e.log.WithFields(logrus.Fields{"image_id": img.ID, "size": img.ImageSize}).Debug("Unusable size descriptor, using default span")
	}
	e.declared[img.ID] = dims{w, h}

	if m, ok := e.measured[img.ID]; ok {
		span := SpanOrDefault(m.w, m.h)
		e.spans[img.ID] = span
		return span
	}
	span := SpanOrDefault(w, h)
	e.spans[img.ID] = span
	return span
}

// Span returns the current span of an image, DefaultSpan if unknown
func (e *Engine) Span(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if span, ok := e.spans[id]; ok {
		return span
	}
	return DefaultSpan
}

// Measured queues an asset-dimensions event. It is applied on the next Flush.
func (e *Engine) Measured(d AssetDimensions) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending[d.ID] = d
}

// Flush applies the queued measurements and returns the ids whose span changed.
// Measurements equal to the declared size or with invalid dimensions change nothing.
func (e *Engine) Flush() []string {
	e.mu.Lock()
	pending := e.pending
	e.pending = make(map[string]AssetDimensions)

	type change struct {
		id   string
		span int
	}
	var changes []change
	for id, d := range pending {
		if _, err := Span(d.Width, d.Height); err != nil {
			e.log.WithFields(logrus.Fields{"image_id": id, "width": d.Width, "height": d.Height}).Debug("Ignoring invalid measurement")
			continue
		}
		if decl, ok := e.declared[id]; ok && decl == (dims{d.Width, d.Height}) {
			continue
		}
		e.measured[id] = dims{d.Width, d.Height}
		span := SpanOrDefault(d.Width, d.Height)
		if old, ok := e.spans[id]; ok && old == span {
			continue
		}
		e.spans[id] = span
		changes = append(changes, change{id, span})
	}
	e.mu.Unlock()

	ids := make([]string, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.id)
		if e.onChange != nil {
			e.onChange(c.id, c.span)
		}
	}
	if len(ids) > 0 {
		e.log.WithField("changed", len(ids)).Debug("Recomputed spans from measured assets")
	}
	return ids
}

// Run consumes asset-dimensions events and flushes once no event has arrived
// for the settle delay. It returns when events is closed (after a final
// flush) or ctx is done.
func (e *Engine) Run(ctx context.Context, events <-chan AssetDimensions) error {
	timer := time.NewTimer(e.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-events:
			if !ok {
				e.Flush()
				return nil
			}
			e.Measured(d)
			timer.Reset(e.settle)

		case <-timer.C:
			e.Flush()
		}
	}
}
