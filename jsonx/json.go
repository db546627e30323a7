package jsonx

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Certified entities (blocks, certificates, inbox/outbox records) are
// content-addressed over this encoding, so it is part of the protocol
// contract: struct fields marshal in declaration order, map keys sorted.
var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

// MustMarshal is for values whose encoding cannot fail (protocol structs with
// no custom marshalers that error).
func MustMarshal(v interface{}) []byte {
	data, err := jsonx.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func Unmarshal(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return jsonx.NewDecoder(r)
}

func NewEncoder(w io.Writer) *jsoniter.Encoder {
	return jsonx.NewEncoder(w)
}
