package eventing

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope wraps an event payload with delivery metadata.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	TenantID   string          `json:"tenant_id"`
	Payload    json.RawMessage `json:"payload"`
}

// BuildEnvelope constructs an envelope for a tenant-addressed event.
func BuildEnvelope(eventType, tenantID string, payload any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, errors.New("eventing: empty event type")
	}
	if payload == nil {
		return Envelope{}, errors.New("eventing: nil payload")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:    NewEventID(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		Payload:    data,
	}, nil
}
