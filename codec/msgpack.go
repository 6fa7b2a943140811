package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes values with vmihailenco/msgpack/v5. The zero value
// is ready to use and reads only `msgpack:"..."` tags.
//
// JSONTags falls back to json tags for fields without a msgpack tag, so
// types already tagged for the default JSON codec keep their field names.
// Strict fails decoding on fields V does not declare.
type Msgpack[V any] struct {
	JSONTags bool
	Strict   bool
}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.JSONTags {
		return msgpack.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if !c.JSONTags && !c.Strict {
		err := msgpack.Unmarshal(b, &v)
		return v, err
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	if c.JSONTags {
		dec.SetCustomStructTag("json")
	}
	dec.DisallowUnknownFields(c.Strict)
	err := dec.Decode(&v)
	return v, err
}
