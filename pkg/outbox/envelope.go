package outbox

import (
	"encoding/json"
	"time"
)

// CurrentEnvelopeVersion is the envelope schema written by Emit and the newest one the
// publisher accepts.
const CurrentEnvelopeVersion = 1

const (
	ActorKindOperator = "operator"
	ActorKindSystem   = "system"
)

// ActorRef is whoever caused the event: an operator id or a scheduler job name.
type ActorRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind,omitempty"`
}

// PayloadEnvelope is the JSON document stored in outbox_events.payload and published as the
// message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
