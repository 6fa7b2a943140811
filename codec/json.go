package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the default codec. The zero value is ready to use.
//
// With Strict set, object fields V does not declare fail decoding. Entries
// written under an older layout of V then read as undecodable, and the
// cache drops them instead of serving a half-filled value.
type JSON[V any] struct {
	Strict bool
}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (c JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if !c.Strict {
		err := json.Unmarshal(b, &v)
		return v, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	return v, err
}
