package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// Descriptor is a registered command together with its trigger and summary.
type Descriptor struct {
	Trigger string
	Summary string
	Command Command
}

// Registry holds the registered commands in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []Descriptor
	index   map[string]int // lowercase trigger -> first entry with it
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		index:  make(map[string]int),
		logger: logger,
	}
}

// Register appends c. When two commands share a trigger the first one
// registered receives the messages; the second is still listed by help.
func (r *Registry) Register(c Command) error {
	trigger := c.Trigger()
	if trigger == "" || strings.IndexFunc(trigger, unicode.IsSpace) >= 0 {
		return fmt.Errorf("invalid trigger %q: must be a single non-empty word", trigger)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(trigger)
	if _, dup := r.index[key]; dup {
		r.logger.Warn("duplicate trigger, earlier command wins", "trigger", trigger)
	} else {
		r.index[key] = len(r.entries)
	}
	r.entries = append(r.entries, Descriptor{Trigger: trigger, Summary: c.Describe(), Command: c})
	r.logger.Debug("registered command", "trigger", trigger)
	return nil
}

// Lookup returns the command for a trigger token, ignoring case.
func (r *Registry) Lookup(token string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[strings.ToLower(token)]
	if !ok {
		return nil, false
	}
	return r.entries[i].Command, true
}

// Descriptors returns a snapshot of the registered commands in
// registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Descriptor(nil), r.entries...)
}

func (r *Registry) watchers() []Watcher {
	var ws []Watcher
	for _, d := range r.Descriptors() {
		if w, ok := d.Command.(Watcher); ok {
			ws = append(ws, w)
		}
	}
	return ws
}

// Start starts every command that implements Lifecycle, in registration
// order. It stops at the first failure.
func (r *Registry) Start(ctx context.Context) error {
	for _, d := range r.Descriptors() {
		lc, ok := d.Command.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", d.Trigger, err)
		}
		r.logger.Info("command started", "trigger", d.Trigger)
	}
	return nil
}

// Stop stops every command that implements Lifecycle, in reverse
// registration order, and returns all errors.
func (r *Registry) Stop() error {
	ds := r.Descriptors()
	var errs []error
	for i := len(ds) - 1; i >= 0; i-- {
		lc, ok := ds[i].Command.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", ds[i].Trigger, err))
		}
	}
	return errors.Join(errs...)
}
