package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/autopilot/pkg/types"
)

// Publish error taxonomy. ErrPermanent means the envelope itself is
// malformed and retrying cannot help; ErrTransient means bounded retry was
// exhausted and the caller may try again later.
var (
	ErrPermanent = errors.New("malformed action envelope")
	ErrTransient = errors.New("publish failed after retries")
)

// Message is one bus delivery: the JSON-encoded envelope plus routing
// attributes that echo the payload.
type Message struct {
	ID         string            `json:"messageId"`
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

// Publisher emits action envelopes onto the bus with at-least-once
// semantics. Consumers must tolerate duplicates.
type Publisher interface {
	Publish(ctx context.Context, env *types.ActionEnvelope) (messageID string, err error)
}

// encode validates the envelope and produces the payload and attributes.
// The attribute set MUST match the payload body; downstream routing relies
// on it.
func encode(env *types.ActionEnvelope) ([]byte, map[string]string, error) {
	if env == nil || env.IncidentID == "" || env.Service == "" || env.Action == "" {
		return nil, nil, fmt.Errorf("%w: incident_id, service_name and action_type are required", ErrPermanent)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	attrs := map[string]string{
		"incident_id":  env.IncidentID,
		"service_name": env.Service,
		"action_type":  string(env.Action),
	}
	return data, attrs, nil
}

// Decode parses a bus message payload back into an envelope
func Decode(data []byte) (*types.ActionEnvelope, error) {
	var env types.ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding action envelope: %w", err)
	}
	return &env, nil
}
