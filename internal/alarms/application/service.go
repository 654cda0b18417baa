package application

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	alarms "metrics-cloud/internal/alarms/domain"
)

// AlarmRepository is the alarm store consumed by the state engine. The
// repository guarantees UpdateAlarm is race-free per alarm id: the prior
// state is captured atomically as part of the same write.
type AlarmRepository interface {
	GetAlarm(ctx context.Context, tenantID, alarmID string) ([]alarms.AlarmRow, error)
	GetAlarms(ctx context.Context, tenantID string, filter alarms.AlarmFilter, offset string, limit int) ([]alarms.AlarmRow, error)
	GetAlarmMetrics(ctx context.Context, alarmID string) ([]alarms.AlarmMetricRow, error)
	GetSubAlarms(ctx context.Context, tenantID, alarmID string) ([]alarms.SubAlarmRow, error)
	UpdateAlarm(ctx context.Context, tenantID, alarmID string, cmd alarms.UpdateCommand) (string, error)
	DeleteAlarm(ctx context.Context, tenantID, alarmID string) error
	GetAlarmDefinition(ctx context.Context, tenantID, alarmID string) (alarms.AlarmDefinitionRow, error)
}

// StateHistoryRepository serves time-bounded state-history records from the
// metrics store.
type StateHistoryRepository interface {
	AlarmHistory(ctx context.Context, tenantID string, alarmIDs []string, offset, limit int, start, end *time.Time) ([]alarms.StateHistoryRow, error)
}

// Service orchestrates alarm state transitions, listing and history.
type Service struct {
	alarms  AlarmRepository
	history StateHistoryRepository
	emitter *Emitter
	logger  *log.Logger
}

// NewService constructs an alarm service.
func NewService(alarmRepo AlarmRepository, historyRepo StateHistoryRepository, emitter *Emitter, logger *log.Logger) (*Service, error) {
	if alarmRepo == nil {
		return nil, errors.New("alarms: nil alarm repository")
	}
	if historyRepo == nil {
		return nil, errors.New("alarms: nil history repository")
	}
	if emitter == nil {
		return nil, errors.New("alarms: nil emitter")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{alarms: alarmRepo, history: historyRepo, emitter: emitter, logger: logger}, nil
}

// Replace applies a full state replace and returns the normalized alarm.
// Absent lifecycle_state and link clear the stored values.
func (s *Service) Replace(ctx context.Context, tenantID, alarmID string, req alarms.UpdateRequest, requestURI string) (AlarmView, error) {
	cmd, err := alarms.BuildReplaceCommand(req)
	if err != nil {
		return AlarmView{}, err
	}
	if _, err := s.UpdateState(ctx, tenantID, alarmID, cmd); err != nil {
		return AlarmView{}, err
	}
	return s.Show(ctx, tenantID, alarmID, requestURI)
}

// Merge applies a partial merge, sourcing defaults for absent fields from
// the current alarm, and returns the normalized alarm.
func (s *Service) Merge(ctx context.Context, tenantID, alarmID string, req alarms.UpdateRequest, requestURI string) (AlarmView, error) {
	prior, err := s.alarms.GetAlarm(ctx, tenantID, alarmID)
	if err != nil {
		return AlarmView{}, alarms.WrapRepository("get alarm", err)
	}
	if len(prior) == 0 {
		return AlarmView{}, alarms.ErrNotFound
	}
	cmd, err := alarms.BuildMergeCommand(req, prior[0])
	if err != nil {
		return AlarmView{}, err
	}
	if _, err := s.UpdateState(ctx, tenantID, alarmID, cmd); err != nil {
		return AlarmView{}, err
	}
	return s.Show(ctx, tenantID, alarmID, requestURI)
}

// UpdateState persists the new state and emits events. A state-updated
// event is always emitted; a state-transitioned event only when the state
// actually changed and the alarm definition still resolves. Returns the
// state prior to the write.
func (s *Service) UpdateState(ctx context.Context, tenantID, alarmID string, cmd alarms.UpdateCommand) (string, error) {
	metricRows, err := s.alarms.GetAlarmMetrics(ctx, alarmID)
	if err != nil {
		return "", alarms.WrapRepository("get alarm metrics", err)
	}
	subAlarmRows, err := s.alarms.GetSubAlarms(ctx, tenantID, alarmID)
	if err != nil {
		return "", alarms.WrapRepository("get sub alarms", err)
	}
	if len(subAlarmRows) == 0 {
		return "", alarms.ErrNotFound
	}

	oldState, err := s.alarms.UpdateAlarm(ctx, tenantID, alarmID, cmd)
	if err != nil {
		return "", alarms.WrapRepository("update alarm", err)
	}

	// The definition id is shared by every sub-alarm row.
	definitionID := subAlarmRows[0].AlarmDefinitionID

	updated := AlarmUpdatedEvent{
		AlarmID:           alarmID,
		AlarmDefinitionID: definitionID,
		Metrics:           metricRows,
		SubAlarms:         subAlarmRows,
		State:             StateInfo{AlarmState: cmd.State, OldAlarmState: oldState},
	}
	if err := s.emitter.AlarmUpdated(ctx, tenantID, updated); err != nil {
		return oldState, err
	}

	if oldState != cmd.State {
		definition, err := s.alarms.GetAlarmDefinition(ctx, tenantID, alarmID)
		if errors.Is(err, alarms.ErrDefinitionNotFound) {
			// Deleted concurrently; the alarm itself is on its way out, so
			// downstream consumers will observe the deletion instead.
			return oldState, nil
		}
		if err != nil {
			return oldState, alarms.WrapRepository("get alarm definition", err)
		}
		transitioned := AlarmTransitionedEvent{
			AlarmID:         alarmID,
			AlarmDefinition: definition,
			Metrics:         metricRows,
			OldState:        oldState,
			NewState:        cmd.State,
		}
		if err := s.emitter.AlarmTransitioned(ctx, tenantID, transitioned); err != nil {
			return oldState, err
		}
	}
	return oldState, nil
}

// Delete removes an alarm and its metric and sub-alarm associations, then
// emits a best-effort deleted event.
func (s *Service) Delete(ctx context.Context, tenantID, alarmID string) error {
	metricRows, err := s.alarms.GetAlarmMetrics(ctx, alarmID)
	if err != nil {
		return alarms.WrapRepository("get alarm metrics", err)
	}
	subAlarmRows, err := s.alarms.GetSubAlarms(ctx, tenantID, alarmID)
	if err != nil {
		return alarms.WrapRepository("get sub alarms", err)
	}
	if len(subAlarmRows) == 0 {
		return alarms.ErrNotFound
	}

	if err := s.alarms.DeleteAlarm(ctx, tenantID, alarmID); err != nil {
		return alarms.WrapRepository("delete alarm", err)
	}

	deleted := AlarmDeletedEvent{
		AlarmID:           alarmID,
		AlarmDefinitionID: subAlarmRows[0].AlarmDefinitionID,
		Metrics:           metricRows,
		SubAlarms:         subAlarmRows,
	}
	if err := s.emitter.AlarmDeleted(ctx, tenantID, deleted); err != nil {
		s.logger.Printf("alarm deleted event failed: alarm=%s: %v", alarmID, err)
	}
	return nil
}

// List returns a page of normalized alarms. The offset is an opaque cursor:
// the id of the last alarm on the previous page.
func (s *Service) List(ctx context.Context, tenantID string, filter alarms.AlarmFilter, offset string, limit int, requestURI string) (Page, error) {
	rows, err := s.alarms.GetAlarms(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return Page{}, alarms.WrapRepository("get alarms", err)
	}
	views := NormalizeAlarms(rows, requestURI)
	next := ""
	if limit > 0 && len(views) >= limit {
		next = views[len(views)-1].ID
	}
	return Paginate(views, requestURI, limit, next), nil
}

// Show returns the normalized view of a single alarm.
func (s *Service) Show(ctx context.Context, tenantID, alarmID string, requestURI string) (AlarmView, error) {
	rows, err := s.alarms.GetAlarm(ctx, tenantID, alarmID)
	if err != nil {
		return AlarmView{}, alarms.WrapRepository("get alarm", err)
	}
	views := NormalizeAlarms(rows, requestURI)
	if len(views) == 0 {
		return AlarmView{}, alarms.ErrNotFound
	}
	return views[0], nil
}

// History returns a page of state-history records for one alarm.
func (s *Service) History(ctx context.Context, tenantID, alarmID string, offset, limit int, requestURI string) (Page, error) {
	rows, err := s.history.AlarmHistory(ctx, tenantID, []string{alarmID}, offset, limit, nil, nil)
	if err != nil {
		return Page{}, alarms.WrapRepository("alarm history", err)
	}
	return paginateHistory(rows, requestURI, offset, limit), nil
}

// HistoryList returns a page of state-history records across the alarms
// matching a dimension filter. The filter translates to the alarm
// repository's metric-dimension key before the id set is resolved.
func (s *Service) HistoryList(ctx context.Context, tenantID string, dimensions map[string]string, start, end *time.Time, offset, limit int, requestURI string) (Page, error) {
	filter := alarms.AlarmFilter{}
	if len(dimensions) > 0 {
		filter.MetricDimensions = dimensions
	}
	alarmRows, err := s.alarms.GetAlarms(ctx, tenantID, filter, "", 0)
	if err != nil {
		return Page{}, alarms.WrapRepository("get alarms", err)
	}
	ids := make([]string, 0, len(alarmRows))
	seen := make(map[string]struct{}, len(alarmRows))
	for _, row := range alarmRows {
		if _, ok := seen[row.AlarmID]; ok {
			continue
		}
		seen[row.AlarmID] = struct{}{}
		ids = append(ids, row.AlarmID)
	}

	rows, err := s.history.AlarmHistory(ctx, tenantID, ids, offset, limit, start, end)
	if err != nil {
		return Page{}, alarms.WrapRepository("alarm history", err)
	}
	return paginateHistory(rows, requestURI, offset, limit), nil
}

// History pages continue by numeric offset rather than by cursor.
func paginateHistory(rows []alarms.StateHistoryRow, requestURI string, offset, limit int) Page {
	next := ""
	if limit > 0 && len(rows) >= limit {
		next = strconv.Itoa(offset + limit)
	}
	return Paginate(rows, requestURI, limit, next)
}
