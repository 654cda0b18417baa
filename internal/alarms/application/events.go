package application

import (
	"context"
	"errors"

	alarms "metrics-cloud/internal/alarms/domain"
	"metrics-cloud/internal/observability/metrics"
)

const (
	EventAlarmUpdated      = "alarm-updated"
	EventAlarmTransitioned = "alarm-state-transitioned"
	EventAlarmDeleted      = "alarm-deleted"
)

// EventBus delivers alarm events to the owning tenant's stream.
type EventBus interface {
	Publish(ctx context.Context, eventType, tenantID string, payload any) error
}

// StateInfo carries the new and previous evaluation state.
type StateInfo struct {
	AlarmState    string `json:"alarm_state"`
	OldAlarmState string `json:"old_alarm_state"`
}

// AlarmUpdatedEvent is emitted on every successful state write.
type AlarmUpdatedEvent struct {
	AlarmID           string                  `json:"alarm_id"`
	AlarmDefinitionID string                  `json:"alarm_definition_id"`
	Metrics           []alarms.AlarmMetricRow `json:"metrics"`
	SubAlarms         []alarms.SubAlarmRow    `json:"sub_alarms"`
	State             StateInfo               `json:"state"`
}

// AlarmTransitionedEvent is emitted only when the evaluation state actually
// changed and the alarm definition still resolves.
type AlarmTransitionedEvent struct {
	AlarmID         string                    `json:"alarm_id"`
	AlarmDefinition alarms.AlarmDefinitionRow `json:"alarm_definition"`
	Metrics         []alarms.AlarmMetricRow   `json:"metrics"`
	OldState        string                    `json:"old_state"`
	NewState        string                    `json:"new_state"`
}

// AlarmDeletedEvent is emitted after a successful cascading delete.
type AlarmDeletedEvent struct {
	AlarmID           string                  `json:"alarm_id"`
	AlarmDefinitionID string                  `json:"alarm_definition_id"`
	Metrics           []alarms.AlarmMetricRow `json:"metrics"`
	SubAlarms         []alarms.SubAlarmRow    `json:"sub_alarms"`
}

// Emitter publishes alarm lifecycle events. Publishing is synchronous and
// never retried here; a failure surfaces to the caller after the state
// write has already committed.
type Emitter struct {
	bus EventBus
}

// NewEmitter constructs an emitter.
func NewEmitter(bus EventBus) (*Emitter, error) {
	if bus == nil {
		return nil, errors.New("alarms: nil event bus")
	}
	return &Emitter{bus: bus}, nil
}

// AlarmUpdated publishes a state-updated event.
func (e *Emitter) AlarmUpdated(ctx context.Context, tenantID string, event AlarmUpdatedEvent) error {
	metrics.IncAlarmEvent(EventAlarmUpdated)
	return e.bus.Publish(ctx, EventAlarmUpdated, tenantID, event)
}

// AlarmTransitioned publishes a state-transitioned event.
func (e *Emitter) AlarmTransitioned(ctx context.Context, tenantID string, event AlarmTransitionedEvent) error {
	metrics.IncAlarmEvent(EventAlarmTransitioned)
	metrics.IncStateTransition(event.NewState)
	return e.bus.Publish(ctx, EventAlarmTransitioned, tenantID, event)
}

// AlarmDeleted publishes a deleted event.
func (e *Emitter) AlarmDeleted(ctx context.Context, tenantID string, event AlarmDeletedEvent) error {
	metrics.IncAlarmEvent(EventAlarmDeleted)
	return e.bus.Publish(ctx, EventAlarmDeleted, tenantID, event)
}
