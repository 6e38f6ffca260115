package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Codec marshals the plain Go messages of CallService as JSON. It replaces
// connect's protobuf JSON codec under the same name.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	return data, errors.Wrap(err, "marshal message")
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, msg), "unmarshal message")
}
