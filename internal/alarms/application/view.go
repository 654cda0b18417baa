package application

import (
	"strings"
	"time"

	alarms "metrics-cloud/internal/alarms/domain"
)

// Timestamps render as ISO-8601 with a literal trailing Z.
const timestampLayout = "2006-01-02T15:04:05"

// Link is a hypermedia link attached to a resource.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// AlarmDefinitionRef is the definition stub nested in an alarm view.
type AlarmDefinitionRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Links    []Link `json:"links"`
}

// MetricView is one metric entry with its parsed dimensions.
type MetricView struct {
	Name       string            `json:"name"`
	Dimensions map[string]string `json:"dimensions"`
}

// AlarmView is the normalized alarm representation returned by list and
// show.
type AlarmView struct {
	ID                    string             `json:"id"`
	Links                 []Link             `json:"links"`
	Metrics               []MetricView       `json:"metrics"`
	State                 string             `json:"state"`
	LifecycleState        *string            `json:"lifecycle_state"`
	Link                  *string            `json:"link"`
	StateUpdatedTimestamp string             `json:"state_updated_timestamp"`
	UpdatedTimestamp      string             `json:"updated_timestamp"`
	CreatedTimestamp      string             `json:"created_timestamp"`
	AlarmDefinition       AlarmDefinitionRef `json:"alarm_definition"`
}

// NormalizeAlarms folds the ordered denormalized row set into alarm views.
// Rows for the same alarm must be contiguous; a new alarm id closes out the
// previous alarm. An empty row set yields an empty result.
func NormalizeAlarms(rows []alarms.AlarmRow, requestURI string) []AlarmView {
	result := make([]AlarmView, 0, len(rows))

	var current *AlarmView
	for i := range rows {
		row := &rows[i]
		if current == nil || current.ID != row.AlarmID {
			if current != nil {
				result = append(result, *current)
			}
			current = &AlarmView{
				ID:                    row.AlarmID,
				Links:                 alarmLinks(requestURI, row.AlarmID),
				Metrics:               []MetricView{},
				State:                 row.State,
				LifecycleState:        row.LifecycleState,
				Link:                  row.Link,
				StateUpdatedTimestamp: formatTimestamp(row.StateUpdatedAt),
				UpdatedTimestamp:      formatTimestamp(row.UpdatedAt),
				CreatedTimestamp:      formatTimestamp(row.CreatedAt),
				AlarmDefinition: AlarmDefinitionRef{
					ID:       row.AlarmDefinitionID,
					Name:     row.AlarmDefinitionName,
					Severity: row.Severity,
					Links:    definitionLinks(requestURI, row.AlarmID, row.AlarmDefinitionID),
				},
			}
		}
		current.Metrics = append(current.Metrics, MetricView{
			Name:       row.MetricName,
			Dimensions: ParseDimensions(row.MetricDimensions),
		})
	}
	if current != nil {
		result = append(result, *current)
	}
	return result
}

// ParseDimensions parses a stored "key=value,key=value" string into a
// dimension map. Empty input yields an empty map.
func ParseDimensions(raw string) map[string]string {
	dimensions := make(map[string]string)
	if raw == "" {
		return dimensions
	}
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		dimensions[key] = value
	}
	return dimensions
}

func formatTimestamp(value time.Time) string {
	return value.UTC().Format(timestampLayout) + "Z"
}

// alarmLinks builds the self link for an alarm. The request URI may already
// address the alarm (show) or the collection (list).
func alarmLinks(requestURI, alarmID string) []Link {
	href := stripQuery(requestURI)
	if !strings.HasSuffix(href, "/"+alarmID) {
		href = strings.TrimRight(href, "/") + "/" + alarmID
	}
	return []Link{{Rel: "self", Href: href}}
}

// definitionLinks derives the alarm-definition link by substituting the
// alarms collection for alarm-definitions in the request URI.
func definitionLinks(requestURI, alarmID, definitionID string) []Link {
	base := stripQuery(requestURI)
	base = strings.TrimSuffix(base, "/"+alarmID)
	base = strings.Replace(base, "alarms", "alarm-definitions", 1)
	return []Link{{Rel: "self", Href: strings.TrimRight(base, "/") + "/" + definitionID}}
}

func stripQuery(uri string) string {
	if idx := strings.IndexByte(uri, '?'); idx >= 0 {
		return uri[:idx]
	}
	return uri
}
