package source

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FileSpec is a SubgraphSpec plus the local SDL files that make it up.
type FileSpec struct {
	SubgraphSpec
	Files []string
}

// FileSource recomposes the supergraph from local SDL files on a poll
// interval, and can also be triggered directly (e.g. from a SIGHUP handler).
type FileSource struct {
	specs     []FileSpec
	publisher *Publisher
	interval  time.Duration
}

// NewFileSource builds a FileSource publishing to publisher. An interval of
// zero disables polling; Run then performs a single initial Reload.
func NewFileSource(publisher *Publisher, specs []FileSpec, interval time.Duration) *FileSource {
	return &FileSource{specs: specs, publisher: publisher, interval: interval}
}

// Reload reads every spec's files from disk and republishes the supergraph.
// The last good snapshot remains published if this returns an error.
func (f *FileSource) Reload() error {
	specs := make([]SubgraphSpec, 0, len(f.specs))
	sdls := make(map[string]string, len(f.specs))

	for _, spec := range f.specs {
		var sdl []byte
		for _, file := range spec.Files {
			b, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %q for subgraph %q: %w", file, spec.Name, err)
			}
			sdl = append(sdl, b...)
			sdl = append(sdl, '\n')
		}

		specs = append(specs, spec.SubgraphSpec)
		sdls[spec.Name] = string(sdl)
	}

	superGraph, err := Compose(specs, sdls)
	if err != nil {
		return err
	}

	f.publisher.Publish(&Snapshot{SuperGraph: superGraph, Specs: specs, BuiltAt: time.Now()})
	return nil
}

// Run performs an initial Reload, then polls on the configured interval
// until ctx is canceled.
func (f *FileSource) Run(ctx context.Context) error {
	if err := f.Reload(); err != nil {
		return err
	}
	if f.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// A failed reload keeps serving the last good snapshot rather
			// than tearing down the router over a transient edit.
			_ = f.Reload()
		}
	}
}
