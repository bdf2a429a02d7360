package ice

import (
	"net"
	"testing"
)

type fakeSender struct{ sent []Tuple }

func (f *fakeSender) SendTo(t Tuple, data []byte) error {
	f.sent = append(f.sent, t)
	return nil
}

func tuple(n int) Tuple {
	return Tuple{SessionID: n, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, byte(n)), Port: 5000 + n}}
}

func TestNinthTupleEvictsOldestNonSelected(t *testing.T) {
	s := NewServer(&fakeSender{}, Credentials{Ufrag: "u", Pwd: "p"}, nil)

	for i := 1; i <= 8; i++ {
		s.insertTuple(tuple(i))
	}
	if len(s.tuples) != maxTuples {
		t.Fatalf("len(tuples) = %d, want %d after filling the table", len(s.tuples), maxTuples)
	}

	s.insertTuple(tuple(9))

	if len(s.tuples) != maxTuples {
		t.Fatalf("len(tuples) = %d, want %d: a 9th insert must evict one entry, not grow past the cap", len(s.tuples), maxTuples)
	}
	for _, tup := range s.tuples {
		if tup.SessionID == 1 {
			t.Fatal("the oldest tuple (id 1) should have been evicted to make room for the 9th")
		}
	}
}

func TestSelectedTupleNeverEvicted(t *testing.T) {
	s := NewServer(&fakeSender{}, Credentials{Ufrag: "u", Pwd: "p"}, nil)

	for i := 1; i <= 8; i++ {
		s.insertTuple(tuple(i))
	}
	s.promote(tuple(1), 1) // oldest tuple becomes selected

	s.insertTuple(tuple(9))

	found := false
	for _, tup := range s.tuples {
		if tup.SessionID == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("the selected tuple must never be evicted even when it is the oldest entry")
	}
}

func TestRemoveSelectedTuplePromotesNext(t *testing.T) {
	s := NewServer(&fakeSender{}, Credentials{Ufrag: "u", Pwd: "p"}, nil)
	s.insertTuple(tuple(1))
	s.insertTuple(tuple(2))
	s.promote(tuple(1), 1)

	s.RemoveTuple(tuple(1))

	got, ok := s.Selected()
	if !ok {
		t.Fatal("a remaining tuple should have been promoted, not left unselected")
	}
	if got.SessionID != 2 {
		t.Fatalf("promoted tuple = %d, want 2 (the first remaining tuple)", got.SessionID)
	}
	if s.State() != Completed {
		t.Fatalf("state = %v, want Completed after promotion", s.State())
	}
}

func TestRemoveLastSelectedTupleDisconnects(t *testing.T) {
	s := NewServer(&fakeSender{}, Credentials{Ufrag: "u", Pwd: "p"}, nil)
	s.insertTuple(tuple(1))
	s.promote(tuple(1), 1)

	s.RemoveTuple(tuple(1))

	if s.State() != Disconnected {
		t.Fatalf("state = %v, want Disconnected when the selected tuple's removal leaves none behind", s.State())
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("Selected() should report none once the server has no tuples left")
	}
}
