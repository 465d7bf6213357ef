package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

// Peer messages are encoded with msgpack.

type Encoder struct {
	encoder *codec.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	var handle codec.MsgpackHandle
	return &Encoder{
		encoder: codec.NewEncoder(w, &handle),
	}
}

func (e *Encoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

type Decoder struct {
	decoder *codec.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	var handle codec.MsgpackHandle
	return &Decoder{
		decoder: codec.NewDecoder(r, &handle),
	}
}

func (d *Decoder) Decode(v interface{}) error {
	return d.decoder.Decode(v)
}

// Marshal encodes v as msgpack.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack encoded b into v.
func Unmarshal(b []byte, v interface{}) error {
	if err := NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
