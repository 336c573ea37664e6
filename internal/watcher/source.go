// Package watcher turns raw filesystem notifications for one directory
// into a deduplicated stream of semantic file change events.
package watcher

import (
	"context"
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
)

// RawKind classifies a low-level notification before reconciliation.
type RawKind int

const (
	RawCreate RawKind = iota
	RawModify
	RawRemove
	RawOther
)

func (k RawKind) String() string {
	switch k {
	case RawCreate:
		return "create"
	case RawModify:
		return "modify"
	case RawRemove:
		return "remove"
	default:
		return "other"
	}
}

// Raw is a single unprocessed filesystem notification. Transient: produced
// by the source and consumed immediately by the engine.
type Raw struct {
	Path string
	Kind RawKind
}

// Source wraps an fsnotify watch on a single directory (non-recursive) and
// forwards every notification, unfiltered, into a bounded queue.
type Source struct {
	fsw *fsnotify.Watcher
	raw chan Raw
}

// NewSource establishes the OS watch on dir. A failure here is a fatal
// startup error: the process cannot run without a working watch.
func NewSource(dir string, queueSize int) (*Source, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Source{
		fsw: fsw,
		raw: make(chan Raw, queueSize),
	}, nil
}

// Raw returns the queue of forwarded notifications. Closed when Run exits.
func (s *Source) Raw() <-chan Raw {
	return s.raw
}

// Run forwards fsnotify events until ctx is cancelled or the underlying
// watcher is closed. Watch errors are logged and skipped; they never stop
// the loop.
func (s *Source) Run(ctx context.Context) {
	defer close(s.raw)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			select {
			case s.raw <- Raw{Path: ev.Name, Kind: mapOp(ev.Op)}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watch error: %v", err)
		}
	}
}

func (s *Source) Close() error {
	return s.fsw.Close()
}

// mapOp tags an fsnotify op with the raw kind the engine reasons about.
// A rename away from the watched directory is a removal from its point of
// view; Chmod and anything else is noise.
func mapOp(op fsnotify.Op) RawKind {
	switch {
	case op.Has(fsnotify.Create):
		return RawCreate
	case op.Has(fsnotify.Write):
		return RawModify
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return RawRemove
	default:
		return RawOther
	}
}
