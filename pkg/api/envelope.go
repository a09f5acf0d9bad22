package api

import (
	"encoding/json"

	"github.com/hexlane/reconchain/pkg/schema"
)

// envelope is the uniform response wrapper: {ok, data, error?}.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *remoteError    `json:"error,omitempty"`
}

type remoteError struct {
	Message string `json:"message"`
}

// decodeEnvelope parses raw response bytes into the envelope.
// An empty body is treated as a bare success (some control endpoints
// reply 204-style with no payload).
func decodeEnvelope(raw []byte) (*envelope, error) {
	if len(raw) == 0 {
		return &envelope{OK: true}, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "malformed response envelope: %s", err).WithCause(err)
	}
	return &env, nil
}
