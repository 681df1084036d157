package codec

import (
	"encoding/json"
	"io"
)

// JSON exchanges values of T as JSON payloads inside Bytes frames.
type JSON[T any] struct {
	inner Bytes
}

func NewJSON[T any]() JSON[T] {
	return JSON[T]{}
}

func (enc JSON[T]) Encode(w io.Writer, item T) error {
	buf, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return enc.inner.Encode(w, buf)
}

func (enc JSON[T]) Decode(r io.Reader) (item T, err error) {
	buf, err := enc.inner.Decode(r)
	if err != nil {
		return item, err
	}
	err = json.Unmarshal(buf, &item)
	return item, err
}
