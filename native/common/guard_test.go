package common

import (
	"errors"
	"testing"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	paused := pauseSet{"marketplace": true}
	if err := Guard(paused, "marketplace"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(paused, "licensing"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "marketplace"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(paused, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
}
