package alarms

import "time"

const (
	StateOK           = "OK"
	StateAlarm        = "ALARM"
	StateUndetermined = "UNDETERMINED"
)

// ValidState reports whether value is a known alarm state.
func ValidState(value string) bool {
	switch value {
	case StateOK, StateAlarm, StateUndetermined:
		return true
	default:
		return false
	}
}

// AlarmRow is one denormalized alarm×metric join row as returned by the
// alarm repository. Rows for the same alarm are contiguous and ordered by
// alarm id.
type AlarmRow struct {
	AlarmID             string
	State               string
	LifecycleState      *string
	Link                *string
	StateUpdatedAt      time.Time
	UpdatedAt           time.Time
	CreatedAt           time.Time
	AlarmDefinitionID   string
	AlarmDefinitionName string
	Severity            string
	MetricName          string
	MetricDimensions    string
}

// AlarmMetricRow is one metric association row used in event payloads.
type AlarmMetricRow struct {
	AlarmID    string `json:"alarm_id"`
	Name       string `json:"name"`
	Dimensions string `json:"dimensions"`
}

// SubAlarmRow is one evaluation leaf of an alarm's compound expression.
// Every row for a given alarm carries the same alarm definition id.
type SubAlarmRow struct {
	SubAlarmID        string `json:"sub_alarm_id"`
	AlarmID           string `json:"alarm_id"`
	AlarmDefinitionID string `json:"alarm_definition_id"`
	Expression        string `json:"expression"`
}

// AlarmDefinitionRow is the definition snapshot referenced by an alarm.
type AlarmDefinitionRow struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Expression  string `json:"expression"`
}

// StateHistoryRow is one state-history record from the metrics store.
type StateHistoryRow struct {
	AlarmID    string    `json:"alarm_id"`
	OldState   string    `json:"old_state"`
	NewState   string    `json:"new_state"`
	Reason     string    `json:"reason"`
	ReasonData string    `json:"reason_data"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlarmFilter narrows alarm listings.
type AlarmFilter struct {
	AlarmDefinitionID string
	MetricName        string
	MetricDimensions  map[string]string
	State             string
	LifecycleState    string
}
