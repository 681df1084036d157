// Package codec turns typed items into bytes on a connection and back.
//
// Codecs are plain values shared safely across channels; all state lives in
// the reader/writer they are handed.
package codec

import "io"

// Encoder writes one item to w. It must write the whole item or return an
// error; partial writes are treated as write failures by the caller.
type Encoder[T any] interface {
	Encode(w io.Writer, item T) error
}

// Decoder reads exactly one item from r. Clean end of stream is io.EOF.
type Decoder[T any] interface {
	Decode(r io.Reader) (T, error)
}
