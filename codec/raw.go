package codec

// Bytes stores []byte values as-is. Encode copies so later mutation of the
// caller's slice cannot reach a resident entry.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String stores Go strings as their UTF-8 bytes, without validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
