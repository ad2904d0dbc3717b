// Package output provides formatters for displaying sitewatch change
// reports in various output formats (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// Status marks the bucket a path was sorted into.
type Status string

// Path statuses, in display order.
const (
	StatusNew     Status = "new"
	StatusDeleted Status = "deleted"
	StatusChanged Status = "changed"
	StatusIgnored Status = "ignored"
)

// Change is one path of a report together with its bucket.
type Change struct {
	Status Status `json:"status" yaml:"status"`
	Path   string `json:"path" yaml:"path"`
	Hash   string `json:"hash" yaml:"hash"`
}

// Changes flattens the buckets of r into a single list: new, deleted,
// changed and then ignored paths, each in report order. Directory paths
// carry a trailing slash.
func Changes(r *types.Report) []Change {
	var changes []Change
	add := func(status Status, records []types.FileRecord) {
		for _, rec := range records {
			p := rec.ComparePath
			if rec.Kind == types.KindDirectory {
				p += "/"
			}
			changes = append(changes, Change{Status: status, Path: p, Hash: rec.Hash})
		}
	}
	add(StatusNew, r.NewFiles)
	add(StatusDeleted, r.DeletedFiles)
	add(StatusChanged, r.ChangedFiles)
	add(StatusIgnored, r.IgnoredFiles)
	return changes
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *types.Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
