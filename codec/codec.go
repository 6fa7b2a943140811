// Package codec turns cache values into the payload bytes stored in a tier
// and back. The engine frames, compresses and accounts for those bytes; a
// Codec only has to be a reversible V <-> []byte mapping.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Func adapts a pair of functions into a Codec.
type Func[V any] struct {
	EncodeFunc func(V) ([]byte, error)
	DecodeFunc func([]byte) (V, error)
}

func (f Func[V]) Encode(v V) ([]byte, error) { return f.EncodeFunc(v) }
func (f Func[V]) Decode(b []byte) (V, error) { return f.DecodeFunc(b) }
