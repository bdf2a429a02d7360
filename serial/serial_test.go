package serial

import "testing"

func TestHandleRoundTrip(t *testing.T) {
	h := New(7, 12345)
	if h.Owner() != 7 {
		t.Fatalf("Owner() = %d, want 7", h.Owner())
	}
	if h.Generation() != 12345 {
		t.Fatalf("Generation() = %d, want 12345", h.Generation())
	}
}

func TestSlabLookupAfterRemove(t *testing.T) {
	s := NewSlab[string](1)
	h := s.Insert("conn-a")

	v, ok := s.Lookup(h)
	if !ok || v != "conn-a" {
		t.Fatalf("Lookup before remove = (%q, %v), want (conn-a, true)", v, ok)
	}

	s.Remove(h)

	if _, ok := s.Lookup(h); ok {
		t.Fatal("Lookup after Remove should miss: handle must be invalid once its object is destroyed")
	}
}

func TestSlabWrongOwnerMisses(t *testing.T) {
	s := NewSlab[int](2)
	h := s.Insert(42)

	foreign := New(3, h.Generation())
	if _, ok := s.Lookup(foreign); ok {
		t.Fatal("a handle stamped with a different owner id must never resolve in this slab")
	}
}

func TestSlabGenerationsNeverReused(t *testing.T) {
	s := NewSlab[int](1)
	h1 := s.Insert(1)
	s.Remove(h1)
	h2 := s.Insert(2)

	if h1 == h2 {
		t.Fatal("a freed generation must not be handed out again while any handle could still reference it")
	}
	if _, ok := s.Lookup(h1); ok {
		t.Fatal("stale handle h1 must not resolve to the new object stored under h2")
	}
}
