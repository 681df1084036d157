package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds how large a single length-prefixed frame may be
// before Decode refuses it.
const MaxFrameSize = 1 << 26

// Bytes is a framing codec using varint-length-prefixed frames to exchange
// []byte items.
type Bytes struct{}

func (Bytes) Encode(w io.Writer, item []byte) error {
	buf := protowire.AppendVarint(nil, uint64(len(item)))
	buf = append(buf, item...)
	_, err := w.Write(buf)
	return err
}

func (Bytes) Decode(r io.Reader) ([]byte, error) {
	prefix := make([]byte, 0, binary.MaxVarintLen64)
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			if len(prefix) > 0 && err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		prefix = append(prefix, one[0])
		if one[0] < 0x80 {
			break
		}
		if len(prefix) >= binary.MaxVarintLen64 {
			return nil, fmt.Errorf("codec: malformed length prefix")
		}
	}

	size, n := protowire.ConsumeVarint(prefix)
	if err := protowire.ParseError(n); err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("codec: frame of %d bytes exceeds limit", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
