// Package mock publishes a scripted stream of synthetic scene events so
// the frontend and observers can be exercised without a real watched
// directory.
package mock

import (
	"context"
	"math/rand"
	"time"

	"github.com/kitbash-viewer/server/internal/event"
	"github.com/kitbash-viewer/server/internal/hub"
)

var sceneFiles = []string{
	"rock_large.obj",
	"rock_small.obj",
	"tree_pine.obj",
	"crate.obj",
	"barrel.obj",
	"wall_segment.obj",
}

type Generator struct {
	hub      *hub.Hub
	interval time.Duration
	present  map[string]bool
}

func NewGenerator(h *hub.Hub, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Generator{
		hub:      h,
		interval: interval,
		present:  make(map[string]bool),
	}
}

// Start runs the generator until ctx is cancelled. The first few ticks add
// the scripted files; after that each tick mostly modifies one of them,
// with the occasional remove and re-add.
func (g *Generator) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	added := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if added < len(sceneFiles) {
				name := sceneFiles[added]
				g.present[name] = true
				g.hub.Publish(event.Event{Type: event.Added, Filename: name})
				added++
				continue
			}
			g.tick()
		}
	}
}

func (g *Generator) tick() {
	name := sceneFiles[rand.Intn(len(sceneFiles))]

	if !g.present[name] {
		g.present[name] = true
		g.hub.Publish(event.Event{Type: event.Added, Filename: name})
		return
	}

	// Roughly one in eight ticks removes a file; the rest are edits.
	if rand.Intn(8) == 0 {
		g.present[name] = false
		g.hub.Publish(event.Event{Type: event.Removed, Filename: name})
		return
	}

	g.hub.Publish(event.Event{Type: event.Modified, Filename: name})
}
