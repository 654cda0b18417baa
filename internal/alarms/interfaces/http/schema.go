package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	alarms "metrics-cloud/internal/alarms/domain"
)

const (
	maxBodyBytes          = 1 << 20
	maxLifecycleStateSize = 50
	maxLinkSize           = 512

	defaultLimit = 50
	maxLimit     = 10000
)

// decodeUpdateRequest parses and structurally validates an alarm-update
// payload. Unknown fields and oversized values are rejected before the
// engine is invoked.
func decodeUpdateRequest(r *http.Request) (alarms.UpdateRequest, error) {
	var req alarms.UpdateRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return alarms.UpdateRequest{}, &alarms.ValidationError{Field: "body", Reason: "must be a valid alarm update document"}
	}
	if req.LifecycleState != nil && len(*req.LifecycleState) > maxLifecycleStateSize {
		return alarms.UpdateRequest{}, &alarms.ValidationError{Field: "lifecycle_state", Reason: "exceeds 50 characters"}
	}
	if req.Link != nil && len(*req.Link) > maxLinkSize {
		return alarms.UpdateRequest{}, &alarms.ValidationError{Field: "link", Reason: "exceeds 512 characters"}
	}
	return req, nil
}

func parseAlarmFilter(r *http.Request) (alarms.AlarmFilter, error) {
	query := r.URL.Query()
	filter := alarms.AlarmFilter{
		AlarmDefinitionID: query.Get("alarm_definition_id"),
		MetricName:        query.Get("metric_name"),
		State:             query.Get("state"),
		LifecycleState:    query.Get("lifecycle_state"),
	}
	if filter.State != "" && !alarms.ValidState(filter.State) {
		return alarms.AlarmFilter{}, &alarms.ValidationError{Field: "state", Reason: "must be one of OK, ALARM, UNDETERMINED"}
	}
	dimensions, err := parseDimensionsParam(query.Get("metric_dimensions"))
	if err != nil {
		return alarms.AlarmFilter{}, err
	}
	filter.MetricDimensions = dimensions
	return filter, nil
}

// parseDimensionsParam parses a "key:value,key:value" query parameter.
func parseDimensionsParam(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	dimensions := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(pair, ":")
		if !found || key == "" || value == "" {
			return nil, &alarms.ValidationError{Field: "dimensions", Reason: "must be a comma-separated list of key:value pairs"}
		}
		dimensions[key] = value
	}
	return dimensions, nil
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 {
		return 0, &alarms.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func parseNumericOffset(r *http.Request) (int, error) {
	value := r.URL.Query().Get("offset")
	if value == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(value)
	if err != nil || offset < 0 {
		return 0, &alarms.ValidationError{Field: "offset", Reason: "must be a non-negative integer"}
	}
	return offset, nil
}

func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, &alarms.ValidationError{Field: key, Reason: "must be RFC3339"}
	}
	utc := parsed.UTC()
	return &utc, nil
}
