package cache

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestRegistry_OpenRegistered(t *testing.T) {
	r := NewRegistry()
	mem := NewMemoryStorage()
	r.Register("mem", func(string) (Storage, io.Closer, error) { return mem, nopCloser{}, nil })

	s, closer, err := r.Open("mem", "ignored")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = closer.Close() }()
	if s != mem {
		t.Error("Open() returned a different storage")
	}
}

func TestRegistry_UnknownBackend(t *testing.T) {
	r := DefaultRegistry()

	_, _, err := r.Open("redis", t.TempDir())

	var ub *UnknownBackendError
	if !errors.As(err, &ub) {
		t.Fatalf("Open(redis) error = %v, want UnknownBackendError", err)
	}
	if !strings.Contains(err.Error(), "file, memory, sqlite") {
		t.Errorf("error = %q, want available backends listed", err)
	}
}

func TestRegistry_FactoryErrorWrapped(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("bad", func(string) (Storage, io.Closer, error) { return nil, nil, boom })

	_, _, err := r.Open("bad", "")
	if !errors.Is(err, boom) {
		t.Errorf("Open(bad) error = %v, want wrapping boom", err)
	}
}

func TestDefaultRegistry_OpensEachBackend(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range r.Backends() {
		t.Run(name, func(t *testing.T) {
			s, closer, err := r.Open(name, t.TempDir())
			if err != nil {
				t.Fatalf("Open(%q) error = %v", name, err)
			}
			defer func() { _ = closer.Close() }()

			if err := s.Save(DefaultKey, []byte("x")); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		})
	}
}

func TestRegistry_RegisterPanics(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		f       Factory
	}{
		{name: "empty name", backend: "", f: func(string) (Storage, io.Closer, error) { return nil, nil, nil }},
		{name: "nil factory", backend: "x", f: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register should panic")
				}
			}()
			NewRegistry().Register(tt.backend, tt.f)
		})
	}
}
