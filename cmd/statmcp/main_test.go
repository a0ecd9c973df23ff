package main

import (
	"errors"
	"testing"
)

func TestExitCodeFor(t *testing.T) {
	if got := exitCodeFor(nil); got != 1 {
		t.Errorf("exitCodeFor(nil) = %d, want 1", got)
	}
	if got := exitCodeFor(errors.New("bad config")); got != 1 {
		t.Errorf("exitCodeFor(plain error) = %d, want 1", got)
	}
	if got := exitCodeFor(fatalRuntimeError(errors.New("boom"))); got != 2 {
		t.Errorf("exitCodeFor(fatalRuntimeError) = %d, want 2", got)
	}
}

func TestFatalRuntimeError_NilIsNil(t *testing.T) {
	if fatalRuntimeError(nil) != nil {
		t.Error("fatalRuntimeError(nil) should be nil")
	}
}

func TestFatalRuntimeError_Unwraps(t *testing.T) {
	inner := errors.New("disk full")
	wrapped := fatalRuntimeError(inner)
	if !errors.Is(wrapped, inner) {
		t.Error("fatalRuntimeError should wrap its argument for errors.Is")
	}
}
