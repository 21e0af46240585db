// Package source builds and republishes the router's supergraph snapshot
// from one of three discovery modes: local SDL files, polled subgraph
// endpoints, or a dynamic registration channel. All three modes converge on
// the same Publisher so planner, plan cache, and executor readers observe a
// single, never-torn, atomically-swapped schema.
package source

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/n9te9/federation-router/federation/graph"
)

// SubgraphSpec describes one subgraph this router federates, independent of
// the source mode that discovered it.
type SubgraphSpec struct {
	Name string
	Host string
}

// Snapshot is an immutable, fully-composed supergraph plus the spec set it
// was built from. A reload swaps the Publisher's pointer to a new Snapshot
// rather than mutating one in place, matching the teacher's
// "stored in atomic.Value, so every value must be read-only" discipline.
type Snapshot struct {
	SuperGraph *graph.SuperGraphV2
	Specs      []SubgraphSpec
	BuiltAt    time.Time
}

// Publisher holds the current Snapshot behind an atomic pointer so readers
// are never blocked by a reload and never observe a partially-built schema.
type Publisher struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []chan struct{}
}

// NewPublisher returns an empty Publisher. Load returns nil until the first
// successful Publish.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Load returns the current snapshot, or nil before the first successful build.
func (p *Publisher) Load() *Snapshot {
	return p.current.Load()
}

// OnReload returns a channel that receives a value every time Publish swaps
// in a new snapshot. The channel is buffered by one and never blocks the
// publisher; a slow subscriber simply misses intermediate reloads.
func (p *Publisher) OnReload() <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.listeners = append(p.listeners, ch)
	p.mu.Unlock()
	return ch
}

// Publish swaps in a newly composed snapshot and notifies subscribers.
func (p *Publisher) Publish(snap *Snapshot) {
	p.current.Store(snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Compose builds a SuperGraphV2 from the given specs' already-fetched SDL,
// keyed by subgraph name.
func Compose(specs []SubgraphSpec, sdls map[string]string) (*graph.SuperGraphV2, error) {
	subGraphs := make([]*graph.SubGraphV2, 0, len(specs))
	for _, spec := range specs {
		sdl, ok := sdls[spec.Name]
		if !ok {
			return nil, fmt.Errorf("no SDL fetched for subgraph %q", spec.Name)
		}

		sg, err := graph.NewSubGraphV2(spec.Name, []byte(sdl), spec.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subgraph %q: %w", spec.Name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	return graph.NewSuperGraphV2(subGraphs)
}
