package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kitbash-viewer/server/internal/event"
)

// Publisher receives the engine's semantic events.
type Publisher interface {
	Publish(event.Event)
}

// record tracks the last emitted kind and time for one filename. Removed
// records are kept so a burst of spurious remove notifications for an
// already-gone file collapses to a single event.
type record struct {
	kind event.Kind
	at   time.Time
}

// Engine consumes raw notifications and emits semantic events. One
// goroutine (Run) owns the record map, so no locking is needed.
type Engine struct {
	suffix  string
	window  time.Duration
	raw     <-chan Raw
	pub     Publisher
	records map[string]record
}

func NewEngine(suffix string, window time.Duration, raw <-chan Raw, pub Publisher) *Engine {
	return &Engine{
		suffix:  suffix,
		window:  window,
		raw:     raw,
		pub:     pub,
		records: make(map[string]record),
	}
}

// Run processes the raw queue until it is closed or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-e.raw:
			if !ok {
				return
			}
			if ev, ok := e.reclassify(raw, time.Now()); ok {
				log.Printf("%s: %s", ev.Type, ev.Filename)
				e.pub.Publish(ev)
			}
		}
	}
}

// reclassify applies the suffix filter, the on-disk existence check, and
// the debounce rules to a single notification. It reports whether an event
// should be emitted. Anything malformed or unreadable is discarded; the
// engine never fails on a single notification.
func (e *Engine) reclassify(raw Raw, now time.Time) (event.Event, bool) {
	name := filepath.Base(raw.Path)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return event.Event{}, false
	}
	if !strings.HasSuffix(name, e.suffix) {
		return event.Event{}, false
	}
	if raw.Kind == RawOther {
		return event.Event{}, false
	}

	kind := raw.Kind.semantic()

	// The notification may be stale by the time we see it: an editor's
	// atomic save can reorder a remove past a create, and a fast
	// create-then-delete can leave a create event for a file that is
	// already gone. The disk is the authority for absence. A reported
	// remove for a file that still exists is left as a removal.
	if _, err := os.Stat(raw.Path); err != nil {
		if !os.IsNotExist(err) {
			return event.Event{}, false
		}
		kind = event.Removed
	}

	if rec, ok := e.records[name]; ok {
		if rec.kind == kind && now.Sub(rec.at) <= e.window {
			return event.Event{}, false
		}
	}

	e.records[name] = record{kind: kind, at: now}
	return event.Event{Type: kind, Filename: name}, true
}

func (k RawKind) semantic() event.Kind {
	switch k {
	case RawCreate:
		return event.Added
	case RawModify:
		return event.Modified
	default:
		return event.Removed
	}
}
