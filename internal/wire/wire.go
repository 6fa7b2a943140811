package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version        byte = 1
	flagCompressed byte = 1 << 0
)

var (
	ErrCorrupt = errors.New("tiercache: corrupt entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

// Entry is the unit stored in every tier: the serialized value plus the
// bookkeeping the engine needs to validate, evict and relocate it.
type Entry struct {
	Payload      []byte
	Created      time.Time
	LastAccessed time.Time
	Expires      time.Time // zero => no TTL
	Compressed   bool
	Metadata     map[string]string
}

// Size is the byte length of the stored payload.
func (e *Entry) Size() int64 { return int64(len(e.Payload)) }

// Valid reports whether e may be served at now.
func (e *Entry) Valid(now time.Time) bool {
	if e == nil {
		return false
	}
	return e.Expires.IsZero() || now.Before(e.Expires)
}

// TTL returns the remaining lifetime; <= 0 means no expiry was set.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.Expires.IsZero() {
		return 0
	}
	d := e.Expires.Sub(now)
	if d <= 0 {
		// already due; keep it positive so native backend TTLs still expire it
		return time.Millisecond
	}
	return d
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

const hdr = 4 + 1 + 1 + 8 + 8 + 8 + 2

// Encode frames an entry:
//
//	magic(4) | ver(1) | flags(1) | created(i64 be) | accessed(i64 be) | expires(i64 be, 0=none)
//	metaN(u16 be) | {klen(u16) | key | vlen(u16) | val} * metaN
//	plen(u32 be) | payload(plen)
func Encode(e *Entry) ([]byte, error) {
	if len(e.Metadata) > 0xFFFF {
		return nil, errors.New("tiercache: too many metadata fields")
	}
	total := hdr + 4 + len(e.Payload)
	for k, v := range e.Metadata {
		if len(k) > 0xFFFF || len(v) > 0xFFFF {
			return nil, errors.New("tiercache: metadata field too long")
		}
		total += 2 + len(k) + 2 + len(v)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	var flags byte
	if e.Compressed {
		flags |= flagCompressed
	}
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	for _, t := range []time.Time{e.Created, e.LastAccessed, e.Expires} {
		binary.BigEndian.PutUint64(u8[:], uint64(unixNano(t)))
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Metadata)))
	buf.Write(u2[:])
	for k, v := range e.Metadata {
		binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
		buf.Write(u2[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint16(u2[:], uint16(len(v)))
		buf.Write(u2[:])
		buf.WriteString(v)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. Trailing bytes are rejected.
func Decode(b []byte) (*Entry, error) {
	if len(b) < hdr+4 || !hasMagic(b) || b[4] != version {
		return nil, ErrCorrupt
	}
	e := &Entry{Compressed: b[5]&flagCompressed != 0}

	off := 6
	e.Created = fromUnixNano(int64(binary.BigEndian.Uint64(b[off : off+8])))
	off += 8
	e.LastAccessed = fromUnixNano(int64(binary.BigEndian.Uint64(b[off : off+8])))
	off += 8
	e.Expires = fromUnixNano(int64(binary.BigEndian.Uint64(b[off : off+8])))
	off += 8

	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n > 0 {
		e.Metadata = make(map[string]string, n)
	}
	for i := 0; i < n; i++ {
		k, next, ok := readString16(b, off)
		if !ok {
			return nil, ErrCorrupt
		}
		v, next, ok := readString16(b, next)
		if !ok {
			return nil, ErrCorrupt
		}
		off = next
		e.Metadata[k] = v
	}

	if off+4 > len(b) {
		return nil, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off {
		return nil, ErrCorrupt
	}
	e.Payload = b[off : off+plen]
	return e, nil
}

func readString16(b []byte, off int) (string, int, bool) {
	if off+2 > len(b) {
		return "", 0, false
	}
	l := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if l > len(b)-off {
		return "", 0, false
	}
	return string(b[off : off+l]), off + l, true
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
