package codec

import (
	"io"

	"google.golang.org/protobuf/proto"
)

// Proto exchanges protobuf messages of type M inside Bytes frames.
type Proto[M proto.Message] struct {
	inner Bytes
}

func NewProto[M proto.Message]() Proto[M] {
	return Proto[M]{}
}

func (enc Proto[M]) Encode(w io.Writer, item M) error {
	buf, err := proto.Marshal(item)
	if err != nil {
		return err
	}
	return enc.inner.Encode(w, buf)
}

func (enc Proto[M]) Decode(r io.Reader) (item M, err error) {
	buf, err := enc.inner.Decode(r)
	if err != nil {
		return item, err
	}

	var zero M
	allocated := zero.ProtoReflect().New().Interface().(M)
	if err = proto.Unmarshal(buf, allocated); err != nil {
		return item, err
	}
	return allocated, nil
}
