package muxstream

import "testing"

func TestLengthCodecRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 16384, 1 << 20, 1<<32 - 1}
	for _, n := range cases {
		encoded := EncodeLength(n)
		got, consumed, ok := DecodeLength(encoded)
		if !ok {
			t.Fatalf("DecodeLength(%v) ok=false for n=%d", encoded, n)
		}
		if consumed != len(encoded) {
			t.Fatalf("consumed = %d, want %d for n=%d", consumed, len(encoded), n)
		}
		if got != n {
			t.Fatalf("decode(encode(%d)) = %d, want %d", n, got, n)
		}
	}
}

func TestDecodeLengthIncomplete(t *testing.T) {
	// A continuation byte with nothing following is not yet decodable.
	if _, _, ok := DecodeLength([]byte{0x80}); ok {
		t.Fatal("DecodeLength should report incomplete for a lone continuation byte")
	}
}
