// Package vfs holds generated file contents addressable by codegen: URIs.
package vfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Scheme is the URI scheme of every registered entry.
const Scheme = "codegen"

// Registrar is the write side of the registry used by the materializer.
type Registrar interface {
	Register(uri string, content []byte) error
}

// URI qualifies a workspace-relative path with the registry scheme.
func URI(path string) string {
	return Scheme + ":///" + strings.TrimPrefix(path, "/")
}

// PathOf strips the scheme from a registry URI.
func PathOf(uri string) (string, error) {
	prefix := Scheme + ":///"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("not a %s uri: %s", Scheme, uri)
	}
	return strings.TrimPrefix(uri, prefix), nil
}

// Registry is a flat uri -> bytes map with overwrite semantics.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]byte)}
}

// Register stores content at uri, replacing any prior entry.
func (r *Registry) Register(uri string, content []byte) error {
	if _, err := PathOf(uri); err != nil {
		return err
	}

	buf := make([]byte, len(content))
	copy(buf, content)

	r.mu.Lock()
	r.entries[uri] = buf
	r.mu.Unlock()
	return nil
}

// Read returns a copy of the content registered at uri.
func (r *Registry) Read(uri string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	content, ok := r.entries[uri]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, true
}

// List returns all registered URIs in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	uris := make([]string, 0, len(r.entries))
	for uri := range r.entries {
		uris = append(uris, uri)
	}
	r.mu.RUnlock()

	sort.Strings(uris)
	return uris
}
