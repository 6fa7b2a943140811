package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var ErrNoConstructor = errors.New("codec: protobuf codec has no New func")

// Protobuf serializes proto messages with deterministic map ordering, so
// equal messages store equal bytes. New must return a fresh, non-nil
// message to decode into (e.g. func() *pb.User { return &pb.User{} }).
//
// DiscardUnknown drops fields the compiled message does not declare
// instead of carrying them in the decoded value.
type Protobuf[T proto.Message] struct {
	New            func() T
	DiscardUnknown bool
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{New: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.New == nil {
		var zero T
		return zero, ErrNoConstructor
	}
	m := c.New()
	err := proto.UnmarshalOptions{DiscardUnknown: c.DiscardUnknown}.Unmarshal(b, m)
	return m, err
}
