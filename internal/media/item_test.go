package media

import (
	"testing"
	"time"
)

func TestNewItemAssignsUniqueIDs(t *testing.T) {
	a := NewItem("/music/a.mp3", "A", "Artist", time.Minute)
	b := NewItem("/music/a.mp3", "A", "Artist", time.Minute)

	if a.ID == "" || b.ID == "" {
		t.Fatal("NewItem should assign an id")
	}
	if a.Same(b) {
		t.Errorf("two NewItem calls produced the same id %q", a.ID)
	}
	if !a.Same(a.WithID(a.ID)) {
		t.Error("item should be the same as a copy with its own id")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		item     Item
		expected string
	}{
		{"artist and title", Item{ID: "1", Artist: "Boards", Title: "Roygbiv"}, "Boards - Roygbiv"},
		{"title only", Item{ID: "1", Title: "Roygbiv"}, "Roygbiv"},
		{"source only", Item{ID: "1", Source: "/tmp/x.mp3"}, "/tmp/x.mp3"},
		{"id only", Item{ID: "1"}, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.DisplayName(); got != tt.expected {
				t.Errorf("DisplayName() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCloneDoesNotShareBacking(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}}
	cloned := Clone(items)
	cloned[0].ID = "z"

	if items[0].ID != "a" {
		t.Errorf("Clone shares backing array, original changed to %q", items[0].ID)
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
	if got := IDs(items); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("IDs() = %v, want [a b]", got)
	}
}
