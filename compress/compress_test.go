package compress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func roundTrip(t *testing.T, c Compressor, in []byte) []byte {
	t.Helper()
	enc, err := c.Compress(in)
	if err != nil {
		t.Fatalf("%s compress: %v", c.Name(), err)
	}
	out, err := c.Decompress(enc)
	if err != nil {
		t.Fatalf("%s decompress: %v", c.Name(), err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("%s round trip mismatch", c.Name())
	}
	return enc
}

func TestRoundTrip(t *testing.T) {
	z, err := NewZstd(zstd.SpeedFastest)
	if err != nil {
		t.Fatal(err)
	}
	defer z.Close()

	payload := []byte(strings.Repeat(`{"name":"Ann","role":"admin"},`, 500))
	for _, c := range []Compressor{Nop{}, S2{}, z} {
		enc := roundTrip(t, c, payload)
		if c.Name() != "none" && len(enc) >= len(payload) {
			t.Fatalf("%s did not shrink repetitive input: %d >= %d", c.Name(), len(enc), len(payload))
		}
		roundTrip(t, c, []byte{})
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "none", "S2": "s2", "zstd": "zstd", "none": "none"} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != want {
			t.Fatalf("ByName(%q)=%s want %s", name, c.Name(), want)
		}
	}
	if _, err := ByName("lz77"); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}

func TestCorruptInput(t *testing.T) {
	z, _ := DefaultZstd()
	if _, err := z.Decompress([]byte("definitely not zstd")); err == nil {
		t.Fatalf("zstd: expected error")
	}
	if _, err := (S2{}).Decompress([]byte{0xff, 0xff, 0xff, 0xff, 0xff}); err == nil {
		t.Fatalf("s2: expected error")
	}
}
