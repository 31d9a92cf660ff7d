package cache

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Factory opens a Storage at path. The returned closer releases it.
type Factory func(path string) (Storage, io.Closer, error)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Registry maps backend names to storage factories.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry with the file, sqlite and memory backends.
// For the file backend path is a directory; for sqlite it is the directory
// holding cache.db.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("file", func(path string) (Storage, io.Closer, error) {
		return NewFileStorage(path), nopCloser{}, nil
	})
	r.Register("sqlite", func(path string) (Storage, io.Closer, error) {
		s, err := OpenSQLite(filepath.Join(path, "cache.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	})
	r.Register("memory", func(string) (Storage, io.Closer, error) {
		return NewMemoryStorage(), nopCloser{}, nil
	})
	return r
}

// Register adds a named backend. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("cache: Register called with empty name")
	}
	if f == nil {
		panic("cache: Register called with nil factory")
	}
	r.factories[name] = f
}

// Open instantiates the named backend at path.
func (r *Registry) Open(name, path string) (Storage, io.Closer, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, nil, &UnknownBackendError{
			Name:      name,
			Available: r.Backends(),
		}
	}
	s, closer, err := f(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: backend %q: %w", name, err)
	}
	return s, closer, nil
}

// Backends returns registered backend names in sorted order.
func (r *Registry) Backends() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownBackendError indicates a backend name is not registered.
type UnknownBackendError struct {
	Name      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown storage backend %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
