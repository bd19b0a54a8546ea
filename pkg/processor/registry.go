package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/kernel"
)

// Registry maps feature types to processors. It is safe for concurrent use.
// Processor values must be comparable (pointer receivers) so the registry
// can tell when one instance is registered under several types.
type Registry struct {
	mu     sync.RWMutex
	procs  map[feature.Type]Processor
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{procs: make(map[feature.Type]Processor), logger: logger}
}

// NewDefaultRegistry returns a registry holding one built-in processor per
// known feature type, all building their tools with k.
func NewDefaultRegistry(k kernel.Kernel, opts Options) *Registry {
	r := NewRegistry(opts.Logger)
	for _, t := range feature.Types() {
		p := newBuiltin(t, k, opts)
		if p == nil {
			continue
		}
		// A fresh registry has nothing to close.
		_ = r.Register(t, p)
	}
	return r
}

// Register installs p for t. A processor previously registered for t is
// removed and closed first, unless it is still registered under another
// type; p is installed afterwards even when that close fails, and the close
// error is returned. The registry stays locked meanwhile, so no caller of
// Get sees a closed processor.
func (r *Registry) Register(t feature.Type, p Processor) error {
	if p == nil {
		return fmt.Errorf("processor: register %s: nil processor", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var closeErr error
	if old, had := r.procs[t]; had && old != p {
		delete(r.procs, t)
		if !r.referencedLocked(old) {
			if err := old.Close(); err != nil {
				r.logger.Warn("processor: closing replaced processor failed", "type", t.String(), "error", err)
				closeErr = fmt.Errorf("processor: close replaced %s processor: %w", t, err)
			}
		}
	}
	r.procs[t] = p
	return closeErr
}

// referencedLocked reports whether p is registered under any type.
func (r *Registry) referencedLocked(p Processor) bool {
	for _, q := range r.procs {
		if q == p {
			return true
		}
	}
	return false
}

// Get returns the processor for t.
func (r *Registry) Get(t feature.Type) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[t]
	return p, ok
}

// Unregister removes and closes the processor for t.
func (r *Registry) Unregister(t feature.Type) error {
	r.mu.Lock()
	p, ok := r.procs[t]
	delete(r.procs, t)
	shared := ok && r.referencedLocked(p)
	r.mu.Unlock()

	if !ok || shared {
		return nil
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("processor: close %s processor: %w", t, err)
	}
	return nil
}

// Types returns the registered types in priority order.
func (r *Registry) Types() []feature.Type {
	r.mu.RLock()
	out := make([]feature.Type, 0, len(r.procs))
	for t := range r.procs {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return feature.Less(out[i], out[j]) })
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}

// Close closes every distinct processor and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	procs := r.procs
	r.procs = make(map[feature.Type]Processor)
	r.mu.Unlock()

	types := make([]feature.Type, 0, len(procs))
	for t := range procs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return feature.Less(types[i], types[j]) })

	var errs []error
	closed := make(map[Processor]bool, len(procs))
	for _, t := range types {
		p := procs[t]
		if closed[p] {
			continue
		}
		closed[p] = true
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("processor: close %s processor: %w", t, err))
		}
	}
	return errors.Join(errs...)
}
