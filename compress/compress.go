// Package compress provides the byte-in/byte-out codecs applied to entry
// payloads above the cache's compression threshold.
package compress

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor must round-trip: Decompress(Compress(b)) == b.
// Implementations must be safe for concurrent use.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// Nop leaves payloads untouched.
type Nop struct{}

func (Nop) Name() string                          { return "none" }
func (Nop) Compress(src []byte) ([]byte, error)   { return src, nil }
func (Nop) Decompress(src []byte) ([]byte, error) { return src, nil }

// S2 favours speed; a good fit for hot tiers.
type S2 struct{}

func (S2) Name() string { return "s2" }

func (S2) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (S2) Decompress(src []byte) ([]byte, error) {
	return s2.Decode(nil, src)
}

// Zstd favours ratio. Encoder and decoder are created once and reused;
// EncodeAll/DecodeAll are safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var (
	zstdOnce    sync.Once
	zstdDefault *Zstd
	zstdErr     error
)

// NewZstd builds a zstd compressor at the given level.
func NewZstd(level zstd.EncoderLevel) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

// DefaultZstd returns a shared compressor at SpeedDefault.
func DefaultZstd() (*Zstd, error) {
	zstdOnce.Do(func() {
		zstdDefault, zstdErr = NewZstd(zstd.SpeedDefault)
	})
	return zstdDefault, zstdErr
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) Compress(src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

func (z *Zstd) Decompress(src []byte) ([]byte, error) {
	return z.dec.DecodeAll(src, nil)
}

// Close releases encoder/decoder resources.
func (z *Zstd) Close() error {
	z.dec.Close()
	return z.enc.Close()
}

// ByName resolves a configured algorithm name.
func ByName(name string) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "off":
		return Nop{}, nil
	case "s2", "snappy":
		return S2{}, nil
	case "zstd", "zstandard":
		return DefaultZstd()
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}
