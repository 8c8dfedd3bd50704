package runtime

import (
	"time"

	"github.com/queueflow/queueflow/internal/runtime/ids"
)

// CreatedAtKey is the params field queueflow stamps with the send time.
const CreatedAtKey = "createdAt"

// Envelope is the logical message unit exchanged through a queue. Name
// identifies the operation, Params carries an arbitrary structured payload.
// The core performs no validation of Params; a malformed payload is the
// caller's responsibility.
type Envelope struct {
	// ID is a unique message identifier. Left empty, Send assigns a ULID.
	ID string `json:"id,omitempty"`

	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// stamped returns a copy ready for the wire: ID filled in and
// params.createdAt set to the send time. Params is cloned so the caller's
// map is never mutated.
func (e Envelope) stamped(now time.Time) Envelope {
	out := e
	if out.ID == "" {
		out.ID = ids.CreateULID()
	}

	params := make(map[string]any, len(e.Params)+1)
	for k, v := range e.Params {
		params[k] = v
	}
	params[CreatedAtKey] = now.UTC().Format(time.RFC3339Nano)
	out.Params = params

	return out
}
