package protocol

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// The wire codec is Binc in canonical mode, so that the encoding of a value
// is deterministic and can double as the signed message.
func wireHandle() *codec.BincHandle {
	bh := new(codec.BincHandle)
	bh.Canonical = true
	return bh
}

func marshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, wireHandle())

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, wireHandle())

	if err := dec.Decode(v); err != nil {
		return err
	}

	return nil
}

// SerializedSize returns the number of bytes v occupies once encoded with the
// wire codec.
func SerializedSize(v interface{}) (int, error) {
	b, err := marshal(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
