package util

import (
	"slices"
	"testing"
)

func TestShuffleKeepsElements(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	got := slices.Clone(in)
	Shuffle(got)

	if len(got) != len(in) {
		t.Fatalf("length changed: %d", len(got))
	}
	slices.Sort(got)
	if !slices.Equal(got, in) {
		t.Errorf("Shuffle lost or duplicated elements: %v", got)
	}
}

func TestShuffleEmpty(t *testing.T) {
	var s []string
	Shuffle(s)
	if s != nil {
		t.Error("expected nil slice to stay nil")
	}
}
