package muxstream

import "testing"

func TestHeaderCodecRoundTrip(t *testing.T) {
	cases := []Header{
		{Type: 7, MsgID: 42},
		{Type: -1, MsgID: 42},
		{Type: 0, MsgID: 0},
		{Type: 300, MsgID: 70000},
		{Type: -300, MsgID: 0},
		{Type: 127, MsgID: 255},
	}
	for _, h := range cases {
		encoded := EncodeHeader(h)
		got, consumed, ok := DecodeHeader(encoded)
		if !ok {
			t.Fatalf("DecodeHeader(%v) ok=false for %+v", encoded, h)
		}
		if consumed != len(encoded) {
			t.Fatalf("consumed = %d, want %d for %+v", consumed, len(encoded), h)
		}
		if got != h {
			t.Fatalf("decode(encode(%+v)) = %+v", h, got)
		}
	}
}

func TestHeaderKindClassification(t *testing.T) {
	cases := []struct {
		h    Header
		want Kind
	}{
		{Header{Type: 7, MsgID: 42}, KindRequest},
		{Header{Type: 7, MsgID: 0}, KindNotify},
		{Header{Type: 0, MsgID: 42}, KindReply},
		{Header{Type: -1, MsgID: 42}, KindReply},
	}
	for _, c := range cases {
		if got := c.h.Kind(); got != c.want {
			t.Fatalf("Header%+v.Kind() = %v, want %v", c.h, got, c.want)
		}
	}
}
