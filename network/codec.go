package network

import (
	"fmt"

	"mcn/jsonx"
)

// jsonCodec carries requests as canonical JSON. Certified entities are
// content-addressed over the same encoding, so the wire format and the hash
// preimage are one and the same; a protobuf codec would add a second,
// non-deterministic encoding of every certified entity.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := jsonx.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return "json"
}
