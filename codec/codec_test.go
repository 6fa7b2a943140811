package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type profile struct {
	Name  string            `json:"name" msgpack:"name" cbor:"name"`
	Age   int               `json:"age" msgpack:"age" cbor:"age"`
	Tags  []string          `json:"tags" msgpack:"tags" cbor:"tags"`
	Attrs map[string]string `json:"attrs" msgpack:"attrs" cbor:"attrs"`
}

func sample() profile {
	return profile{Name: "Ann", Age: 41, Tags: []string{"a", "b"}, Attrs: map[string]string{"tier": "gold"}}
}

func checkProfile(t *testing.T, name string, c Codec[profile]) {
	t.Helper()
	in := sample()
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("%s encode: %v", name, err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("%s decode: %v", name, err)
	}
	if out.Name != in.Name || out.Age != in.Age || len(out.Tags) != 2 || out.Attrs["tier"] != "gold" {
		t.Fatalf("%s mismatch: got %+v", name, out)
	}
}

func TestStructCodecs(t *testing.T) {
	checkProfile(t, "json", JSON[profile]{})
	checkProfile(t, "msgpack", Msgpack[profile]{})
	checkProfile(t, "cbor", MustCBOR[profile](false))
	checkProfile(t, "cbor-det", MustCBOR[profile](true))
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	m := map[string]int{"z": 1, "a": 2, "m": 3}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := c.Encode(m)
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding changed between runs")
		}
	}
}

func TestCBORTime(t *testing.T) {
	c := MustCBOR[time.Time](false)
	now := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	b, err := c.Encode(now)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Fatalf("time mismatch: %v != %v", got, now)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.GetValue() != "hello" {
		t.Fatalf("got %q", got.GetValue())
	}
}

func TestBytesCopies(t *testing.T) {
	in := []byte("abc")
	enc, _ := Bytes{}.Encode(in)
	in[0] = 'X'
	if string(enc) != "abc" {
		t.Fatalf("Encode must copy, got %q", enc)
	}
	dec, _ := Bytes{}.Decode(enc)
	dec[0] = 'Y'
	if string(enc) != "abc" {
		t.Fatalf("Decode must copy, got %q", enc)
	}
}

func TestString(t *testing.T) {
	b, _ := String{}.Encode("héllo")
	s, _ := String{}.Decode(b)
	if s != "héllo" {
		t.Fatalf("got %q", s)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxEncode: 4, MaxDecode: 3}
	if _, err := c.Encode("toolong"); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected encode limit error, got %v", err)
	}
	if _, err := c.Decode([]byte("abcd")); err == nil {
		t.Fatalf("expected decode limit error")
	}
	if v, err := c.Decode([]byte("abc")); err != nil || v != "abc" {
		t.Fatalf("within limit: v=%q err=%v", v, err)
	}
	unlimited := Limit[string]{Inner: String{}}
	if _, err := unlimited.Encode(strings.Repeat("x", 1<<16)); err != nil {
		t.Fatalf("zero limit must disable checks: %v", err)
	}
}

func TestFunc(t *testing.T) {
	c := Func[int]{
		EncodeFunc: func(v int) ([]byte, error) { return []byte{byte(v)}, nil },
		DecodeFunc: func(b []byte) (int, error) { return int(b[0]), nil },
	}
	b, _ := c.Encode(7)
	v, _ := c.Decode(b)
	if v != 7 {
		t.Fatalf("got %d", v)
	}
}

func TestCBORRejectDupKeys(t *testing.T) {
	dup := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02} // {"a":1,"a":2}

	strict, err := NewCBORWith[map[string]int](CBOROptions{RejectDupKeys: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strict.Decode(dup); err == nil {
		t.Fatalf("duplicate keys accepted")
	}
	if m, err := MustCBOR[map[string]int](false).Decode(dup); err != nil || m["a"] != 2 {
		t.Fatalf("lenient decode: m=%v err=%v", m, err)
	}
}

type jsonOnly struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

func TestJSONStrict(t *testing.T) {
	payload := []byte(`{"user_id":"u1","score":3,"legacy":true}`)
	if v, err := (JSON[jsonOnly]{}).Decode(payload); err != nil || v.UserID != "u1" {
		t.Fatalf("lenient decode: v=%+v err=%v", v, err)
	}
	if _, err := (JSON[jsonOnly]{Strict: true}).Decode(payload); err == nil {
		t.Fatalf("strict decode accepted an undeclared field")
	}
	if v, err := (JSON[jsonOnly]{Strict: true}).Decode([]byte(`{"user_id":"u2","score":1}`)); err != nil || v.Score != 1 {
		t.Fatalf("strict decode of a matching payload: v=%+v err=%v", v, err)
	}
}

func TestMsgpackJSONTags(t *testing.T) {
	c := Msgpack[jsonOnly]{JSONTags: true}
	b, err := c.Encode(jsonOnly{UserID: "u1", Score: 7})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Msgpack[map[string]any]{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m["user_id"]; !ok {
		t.Fatalf("json tag not used as field name: %v", m)
	}
	got, err := c.Decode(b)
	if err != nil || got.UserID != "u1" || got.Score != 7 {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestMsgpackStrict(t *testing.T) {
	b, err := Msgpack[map[string]any]{}.Encode(map[string]any{"user_id": "u1", "legacy": true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (Msgpack[jsonOnly]{JSONTags: true}).Decode(b); err != nil {
		t.Fatalf("lenient decode: %v", err)
	}
	if _, err := (Msgpack[jsonOnly]{JSONTags: true, Strict: true}).Decode(b); err == nil {
		t.Fatalf("strict decode accepted an undeclared field")
	}
}

func TestProtobufDiscardUnknown(t *testing.T) {
	b, err := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }).Encode(wrapperspb.String("hi"))
	if err != nil {
		t.Fatal(err)
	}
	keep := NewProtobuf(func() *emptypb.Empty { return &emptypb.Empty{} })
	m, err := keep.Decode(b)
	if err != nil || len(m.ProtoReflect().GetUnknown()) == 0 {
		t.Fatalf("unknown fields not kept: err=%v", err)
	}
	keep.DiscardUnknown = true
	m, err = keep.Decode(b)
	if err != nil || len(m.ProtoReflect().GetUnknown()) != 0 {
		t.Fatalf("unknown fields kept: err=%v", err)
	}
}

func TestProtobufWithoutConstructor(t *testing.T) {
	if _, err := (Protobuf[*emptypb.Empty]{}).Decode(nil); !errors.Is(err, ErrNoConstructor) {
		t.Fatalf("want ErrNoConstructor, got %v", err)
	}
}
