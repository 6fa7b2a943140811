package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions tunes a CBOR codec.
type CBOROptions struct {
	// Deterministic selects Core Deterministic Encoding (RFC 8949), so equal
	// values produce equal bytes.
	Deterministic bool
	// MaxNestedLevels bounds decode depth for payloads read back from
	// shared or durable tiers. 0 keeps the library default (32).
	MaxNestedLevels int
	// RejectDupKeys fails decoding of maps with duplicate keys.
	RejectDupKeys bool
}

// CBOR serializes values with fxamacker/cbor. Times are written as
// RFC3339Nano. The zero value is not usable; use NewCBOR or MustCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	return NewCBORWith[V](CBOROptions{Deterministic: deterministic})
}

func NewCBORWith[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	do := cbor.DecOptions{MaxNestedLevels: o.MaxNestedLevels}
	if o.RejectDupKeys {
		do.DupMapKey = cbor.DupMapKeyEnforcedAPF
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics where NewCBOR would fail.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
