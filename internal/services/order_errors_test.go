package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrOrderNotCancellableIsTransitionError(t *testing.T) {
	err := fmt.Errorf("cancel BB-2026-000001: %w", ErrOrderNotCancellable)
	if !errors.Is(err, ErrOrderNotCancellable) || !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected %v to match both sentinels", err)
	}
	if errors.Is(ErrOrderInvalidTransition, ErrOrderNotCancellable) {
		t.Fatalf("plain transition errors must not read as cancellation errors")
	}
}
