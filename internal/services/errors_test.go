package services_test

import (
	"errors"
	"testing"

	"voiceline/internal/services"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrStore, "resolve", "match-or-register", "episode 4", cause)
	if !errors.Is(err, services.ErrStore) {
		t.Fatal("marker lost")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	want := "store error: resolve: match-or-register: episode 4: disk full"
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "stage", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected transient marker")
	}
}

func TestFatalClassification(t *testing.T) {
	if services.Fatal(nil) {
		t.Fatal("nil is not fatal")
	}
	if services.Fatal(services.Wrap(services.ErrExtraction, "consolidate", "extract", "", errors.New("x"))) {
		t.Fatal("extraction failures are recoverable")
	}
	if !services.Fatal(services.Wrap(services.ErrStore, "resolve", "", "", errors.New("x"))) {
		t.Fatal("store failures are fatal")
	}
}
