package assertx

import (
	"slices"
	"testing"
)

// Equal fails if want != got.
func Equal[T comparable](t *testing.T, want, got T) {
	t.Helper()
	if want != got {
		t.Fatalf("want %v, got %v", want, got)
	}
}

// EqualSlice fails unless want and got hold the same elements in order.
func EqualSlice[T comparable](t *testing.T, want, got []T) {
	t.Helper()
	if !slices.Equal(want, got) {
		t.Fatalf("want %v, got %v", want, got)
	}
}
