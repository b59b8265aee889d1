package nibble

import "testing"

func TestFromBytesHighNibbleFirst(t *testing.T) {
	key := []byte{0x05, 0x40, 0x01}
	n := FromBytes(key)
	want := Nibbles{0, 5, 4, 0, 0, 1}
	if n.Len() != len(want) {
		t.Fatalf("length mismatch: got %d want %d", n.Len(), len(want))
	}
	for i, v := range want {
		if n.At(i) != v {
			t.Fatalf("nibble %d: got %d want %d", i, n.At(i), v)
		}
	}
}

func TestCommonPrefixLen(t *testing.T) {
	a := Nibbles{5, 4, 0, 0}
	b := Nibbles{5, 4, 0, 1}
	if got := CommonPrefixLen(a, b); got != 3 {
		t.Fatalf("got %d want 3", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		n      Nibbles
		isLeaf bool
	}{
		{Nibbles{}, true},
		{Nibbles{1}, true},
		{Nibbles{1, 2}, false},
		{Nibbles{1, 2, 3}, false},
		{Nibbles{0, 15, 15, 0}, true},
	}
	for _, c := range cases {
		enc := Encode(c.n, c.isLeaf)
		dec, isLeaf := Decode(enc)
		if isLeaf != c.isLeaf {
			t.Fatalf("leaf flag mismatch for %v: got %v want %v", c.n, isLeaf, c.isLeaf)
		}
		if dec.Len() != c.n.Len() {
			t.Fatalf("length mismatch for %v: got %v", c.n, dec)
		}
		for i := range c.n {
			if dec.At(i) != c.n[i] {
				t.Fatalf("nibble mismatch for %v: got %v", c.n, dec)
			}
		}
	}
}
