package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestBytesRoundTrip(t *testing.T) {
	var c Bytes
	var buf bytes.Buffer

	frames := [][]byte{
		[]byte("short"),
		{},
		bytes.Repeat([]byte{0xAB}, 300), // needs a two-byte length prefix
	}
	for _, f := range frames {
		require.NoError(t, c.Encode(&buf, f))
	}

	for _, want := range frames {
		got, err := c.Decode(&buf)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := c.Decode(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestBytesDecodeTruncatedFrame(t *testing.T) {
	var c Bytes

	// prefix announces 5 bytes, only 2 follow
	r := bytes.NewReader([]byte{0x05, 'h', 'i'})
	_, err := c.Decode(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// cut off inside the length prefix itself
	r = bytes.NewReader([]byte{0x80})
	_, err = c.Decode(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBytesDecodeEmptyIsEOF(t *testing.T) {
	var c Bytes
	_, err := c.Decode(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	c := NewJSON[payload]()
	var buf bytes.Buffer

	want := payload{Name: "riptide", Count: 3}
	require.NoError(t, c.Encode(&buf, want))

	got, err := c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = c.Decode(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestProtoRoundTrip(t *testing.T) {
	c := NewProto[*wrapperspb.StringValue]()
	var buf bytes.Buffer

	require.NoError(t, c.Encode(&buf, wrapperspb.String("over the wire")))

	got, err := c.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, "over the wire", got.GetValue())
}
