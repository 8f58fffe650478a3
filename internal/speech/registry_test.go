package speech

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type stubBackend struct{ name string }

func (s stubBackend) Name() string                            { return s.name }
func (s stubBackend) Voices(context.Context) ([]Voice, error) { return nil, nil }
func (s stubBackend) SynthesizeToFile(context.Context, string, string, Settings) error {
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b", func(map[string]string) (Backend, error) { return stubBackend{"b"}, nil })
	r.Register("a", func(opts map[string]string) (Backend, error) { return stubBackend{opts["name"]}, nil })

	if !r.Has("a") || r.Has("c") {
		t.Error("Has returned unexpected results")
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("List() = %v", got)
	}

	b, err := r.Create("a", map[string]string{"name": "custom"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Name() != "custom" {
		t.Errorf("Expected options to reach the factory, got %q", b.Name())
	}

	_, err = r.Create("missing", nil)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "[a b]") {
		t.Errorf("Expected available backends in error, got %v", err)
	}
}
