package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tether/pkg/inject"
)

// Kind is the role a handler plays in a session.
type Kind string

const (
	KindEntry    Kind = "entry"
	KindEndpoint Kind = "endpoint"
	KindExit     Kind = "exit"
)

// ErrEmptyName is returned when an endpoint is registered without a name.
var ErrEmptyName = errors.New("endpoint name is required")

// Entry is a registered handler together with its signature, captured once
// at registration.
type Entry struct {
	Kind      Kind
	Name      string
	Signature *inject.Signature
}

// Registry manages the handlers of a domain: one entry handler, many named
// endpoints, one exit handler.
type Registry struct {
	mu        sync.RWMutex
	entry     *Entry
	exit      *Entry
	endpoints map[string]*Entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]*Entry),
	}
}

// RegisterEntry sets the connection handler. A later call replaces it.
func (r *Registry) RegisterEntry(fn any) error {
	e, err := scan(KindEntry, string(KindEntry), fn)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry = e
	return nil
}

// RegisterEndpoint adds a named endpoint.
// If an endpoint with the same name exists, it is overwritten.
func (r *Registry) RegisterEndpoint(name string, fn any) error {
	if name == "" {
		return ErrEmptyName
	}
	e, err := scan(KindEndpoint, name, fn)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = e
	return nil
}

// RegisterExit sets the disconnect handler. A later call replaces it.
func (r *Registry) RegisterExit(fn any) error {
	e, err := scan(KindExit, string(KindExit), fn)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exit = e
	return nil
}

// LookupEndpoint returns the endpoint registered under name.
func (r *Registry) LookupEndpoint(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[name]
	return e, ok
}

// Entry returns the connection handler, or nil.
func (r *Registry) Entry() *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entry
}

// Exit returns the disconnect handler, or nil.
func (r *Registry) Exit() *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exit
}

// Endpoints returns the sorted endpoint names.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scan(kind Kind, name string, fn any) (*Entry, error) {
	sig, err := inject.Scan(fn)
	if err != nil {
		return nil, fmt.Errorf("register %s %q: %w", kind, name, err)
	}
	return &Entry{Kind: kind, Name: name, Signature: sig}, nil
}
