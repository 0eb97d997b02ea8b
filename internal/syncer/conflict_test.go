package syncer

import (
	"context"
	"testing"
)

func TestNewResolver(t *testing.T) {
	for _, name := range []string{"keep-local", "keep-remote", "cancel"} {
		r, err := NewResolver(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		res, err := r.Resolve(context.Background(), Conflict{})
		if err != nil {
			t.Fatal(err)
		}
		if string(res) != name {
			t.Errorf("resolution = %s, want %s", res, name)
		}
	}

	if _, err := NewResolver("merge"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
