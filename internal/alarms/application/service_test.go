package application

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	alarms "metrics-cloud/internal/alarms/domain"
)

type stubAlarmRepo struct {
	rows          []alarms.AlarmRow
	metricRows    []alarms.AlarmMetricRow
	subAlarmRows  []alarms.SubAlarmRow
	definition    alarms.AlarmDefinitionRow
	definitionErr error

	oldState  string
	updateErr error
	deleteErr error

	updatedWith   *alarms.UpdateCommand
	deletedAlarm  string
	listFilter    alarms.AlarmFilter
	listOffset    string
	listLimit     int
	updatedTenant string
}

func (s *stubAlarmRepo) GetAlarm(ctx context.Context, tenantID, alarmID string) ([]alarms.AlarmRow, error) {
	return s.rows, nil
}

func (s *stubAlarmRepo) GetAlarms(ctx context.Context, tenantID string, filter alarms.AlarmFilter, offset string, limit int) ([]alarms.AlarmRow, error) {
	s.listFilter = filter
	s.listOffset = offset
	s.listLimit = limit
	return s.rows, nil
}

func (s *stubAlarmRepo) GetAlarmMetrics(ctx context.Context, alarmID string) ([]alarms.AlarmMetricRow, error) {
	return s.metricRows, nil
}

func (s *stubAlarmRepo) GetSubAlarms(ctx context.Context, tenantID, alarmID string) ([]alarms.SubAlarmRow, error) {
	return s.subAlarmRows, nil
}

func (s *stubAlarmRepo) UpdateAlarm(ctx context.Context, tenantID, alarmID string, cmd alarms.UpdateCommand) (string, error) {
	if s.updateErr != nil {
		return "", s.updateErr
	}
	s.updatedTenant = tenantID
	s.updatedWith = &cmd
	return s.oldState, nil
}

func (s *stubAlarmRepo) DeleteAlarm(ctx context.Context, tenantID, alarmID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedAlarm = alarmID
	return nil
}

func (s *stubAlarmRepo) GetAlarmDefinition(ctx context.Context, tenantID, alarmID string) (alarms.AlarmDefinitionRow, error) {
	if s.definitionErr != nil {
		return alarms.AlarmDefinitionRow{}, s.definitionErr
	}
	return s.definition, nil
}

type stubHistoryRepo struct {
	rows []alarms.StateHistoryRow

	gotIDs    []string
	gotOffset int
	gotLimit  int
	gotStart  *time.Time
	gotEnd    *time.Time
}

func (s *stubHistoryRepo) AlarmHistory(ctx context.Context, tenantID string, alarmIDs []string, offset, limit int, start, end *time.Time) ([]alarms.StateHistoryRow, error) {
	s.gotIDs = alarmIDs
	s.gotOffset = offset
	s.gotLimit = limit
	s.gotStart = start
	s.gotEnd = end
	return s.rows, nil
}

type recordedEvent struct {
	eventType string
	tenantID  string
	payload   any
}

type recordingBus struct {
	events []recordedEvent
	fail   map[string]error
}

func (b *recordingBus) Publish(ctx context.Context, eventType, tenantID string, payload any) error {
	if err := b.fail[eventType]; err != nil {
		return err
	}
	b.events = append(b.events, recordedEvent{eventType: eventType, tenantID: tenantID, payload: payload})
	return nil
}

func newTestService(t *testing.T, repo *stubAlarmRepo, history *stubHistoryRepo, bus *recordingBus) *Service {
	t.Helper()
	emitter, err := NewEmitter(bus)
	if err != nil {
		t.Fatalf("emitter: %v", err)
	}
	service, err := NewService(repo, history, emitter, log.New(&strings.Builder{}, "", 0))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service
}

func engineFixtures() *stubAlarmRepo {
	return &stubAlarmRepo{
		rows: []alarms.AlarmRow{{
			AlarmID:           "a-1",
			State:             alarms.StateOK,
			AlarmDefinitionID: "def-1",
			MetricName:        "cpu.idle_perc",
		}},
		metricRows: []alarms.AlarmMetricRow{{AlarmID: "a-1", Name: "cpu.idle_perc"}},
		subAlarmRows: []alarms.SubAlarmRow{
			{SubAlarmID: "sa-1", AlarmID: "a-1", AlarmDefinitionID: "def-1", Expression: "avg(cpu.idle_perc) < 10"},
			{SubAlarmID: "sa-2", AlarmID: "a-1", AlarmDefinitionID: "def-1", Expression: "avg(mem.free_mb) < 128"},
		},
		definition: alarms.AlarmDefinitionRow{ID: "def-1", TenantID: "t-1", Name: "cpu high", Severity: "HIGH"},
		oldState:   alarms.StateOK,
	}
}

func TestUpdateStateTransitionEmitsBothEvents(t *testing.T) {
	repo := engineFixtures()
	bus := &recordingBus{}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	oldState, err := service.UpdateState(context.Background(), "t-1", "a-1", alarms.UpdateCommand{State: alarms.StateAlarm})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldState != alarms.StateOK {
		t.Fatalf("expected prior state OK, got %q", oldState)
	}
	if len(bus.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(bus.events))
	}
	if bus.events[0].eventType != EventAlarmUpdated || bus.events[1].eventType != EventAlarmTransitioned {
		t.Fatalf("unexpected event order: %s, %s", bus.events[0].eventType, bus.events[1].eventType)
	}
	if bus.events[0].tenantID != "t-1" {
		t.Fatalf("expected tenant key, got %q", bus.events[0].tenantID)
	}

	updated, ok := bus.events[0].payload.(AlarmUpdatedEvent)
	if !ok {
		t.Fatalf("unexpected payload: %T", bus.events[0].payload)
	}
	if updated.AlarmDefinitionID != "def-1" {
		t.Fatalf("unexpected definition id: %q", updated.AlarmDefinitionID)
	}
	if updated.State.OldAlarmState != alarms.StateOK || updated.State.AlarmState != alarms.StateAlarm {
		t.Fatalf("unexpected state info: %+v", updated.State)
	}
	if len(updated.SubAlarms) != 2 {
		t.Fatalf("expected sub alarms in payload, got %d", len(updated.SubAlarms))
	}

	transitioned, ok := bus.events[1].payload.(AlarmTransitionedEvent)
	if !ok {
		t.Fatalf("unexpected payload: %T", bus.events[1].payload)
	}
	if transitioned.OldState != alarms.StateOK || transitioned.NewState != alarms.StateAlarm {
		t.Fatalf("unexpected transition: %+v", transitioned)
	}
	if transitioned.AlarmDefinition.Name != "cpu high" {
		t.Fatalf("expected definition snapshot, got %+v", transitioned.AlarmDefinition)
	}
}

func TestUpdateStateNoopEmitsOnlyUpdated(t *testing.T) {
	repo := engineFixtures()
	bus := &recordingBus{}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	if _, err := service.UpdateState(context.Background(), "t-1", "a-1", alarms.UpdateCommand{State: alarms.StateOK}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.events) != 1 || bus.events[0].eventType != EventAlarmUpdated {
		t.Fatalf("expected only updated event, got %v", bus.events)
	}
}

func TestUpdateStateUnknownAlarm(t *testing.T) {
	repo := engineFixtures()
	repo.subAlarmRows = nil
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	_, err := service.UpdateState(context.Background(), "t-1", "missing", alarms.UpdateCommand{State: alarms.StateOK})
	if !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStateSkipsTransitionWhenDefinitionGone(t *testing.T) {
	repo := engineFixtures()
	repo.definitionErr = alarms.ErrDefinitionNotFound
	bus := &recordingBus{}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	oldState, err := service.UpdateState(context.Background(), "t-1", "a-1", alarms.UpdateCommand{State: alarms.StateAlarm})
	if err != nil {
		t.Fatalf("expected race to be swallowed, got %v", err)
	}
	if oldState != alarms.StateOK {
		t.Fatalf("expected prior state, got %q", oldState)
	}
	if len(bus.events) != 1 || bus.events[0].eventType != EventAlarmUpdated {
		t.Fatalf("expected only updated event, got %v", bus.events)
	}
}

func TestUpdateStateSurfacesPublishFailure(t *testing.T) {
	repo := engineFixtures()
	bus := &recordingBus{fail: map[string]error{EventAlarmUpdated: errors.New("broker down")}}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	_, err := service.UpdateState(context.Background(), "t-1", "a-1", alarms.UpdateCommand{State: alarms.StateAlarm})
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected publish failure, got %v", err)
	}
	// The state write itself already committed.
	if repo.updatedWith == nil {
		t.Fatal("expected update to reach the repository")
	}
}

func TestReplaceClearsAbsentFields(t *testing.T) {
	repo := engineFixtures()
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	state := alarms.StateAlarm
	_, err := service.Replace(context.Background(), "t-1", "a-1", alarms.UpdateRequest{State: &state}, "/v2.0/alarms/a-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.updatedWith == nil {
		t.Fatal("expected update")
	}
	if repo.updatedWith.LifecycleState != nil || repo.updatedWith.Link != nil {
		t.Fatalf("expected absent fields to clear, got %+v", repo.updatedWith)
	}
}

func TestReplaceRejectsMissingState(t *testing.T) {
	repo := engineFixtures()
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	_, err := service.Replace(context.Background(), "t-1", "a-1", alarms.UpdateRequest{}, "/v2.0/alarms/a-1")
	var validation *alarms.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if repo.updatedWith != nil {
		t.Fatal("expected no update on validation failure")
	}
}

func TestMergeKeepsPriorValues(t *testing.T) {
	repo := engineFixtures()
	lifecycle := "OPEN"
	repo.rows[0].LifecycleState = &lifecycle

	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	state := alarms.StateAlarm
	_, err := service.Merge(context.Background(), "t-1", "a-1", alarms.UpdateRequest{State: &state}, "/v2.0/alarms/a-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.updatedWith == nil || repo.updatedWith.LifecycleState == nil || *repo.updatedWith.LifecycleState != "OPEN" {
		t.Fatalf("expected prior lifecycle state preserved, got %+v", repo.updatedWith)
	}
	if repo.updatedWith.State != alarms.StateAlarm {
		t.Fatalf("expected new state, got %q", repo.updatedWith.State)
	}
}

func TestMergeUnknownAlarm(t *testing.T) {
	repo := engineFixtures()
	repo.rows = nil
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	_, err := service.Merge(context.Background(), "t-1", "missing", alarms.UpdateRequest{}, "/v2.0/alarms/missing")
	if !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteEmitsBestEffortEvent(t *testing.T) {
	repo := engineFixtures()
	bus := &recordingBus{}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	if err := service.Delete(context.Background(), "t-1", "a-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.deletedAlarm != "a-1" {
		t.Fatalf("expected delete, got %q", repo.deletedAlarm)
	}
	if len(bus.events) != 1 || bus.events[0].eventType != EventAlarmDeleted {
		t.Fatalf("expected deleted event, got %v", bus.events)
	}
}

func TestDeleteSwallowsEventFailure(t *testing.T) {
	repo := engineFixtures()
	bus := &recordingBus{fail: map[string]error{EventAlarmDeleted: errors.New("broker down")}}
	service := newTestService(t, repo, &stubHistoryRepo{}, bus)

	if err := service.Delete(context.Background(), "t-1", "a-1"); err != nil {
		t.Fatalf("delete event failure must not fail the request: %v", err)
	}
}

func TestDeleteUnknownAlarm(t *testing.T) {
	repo := engineFixtures()
	repo.subAlarmRows = nil
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	if err := service.Delete(context.Background(), "t-1", "missing"); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFullPageCursor(t *testing.T) {
	repo := engineFixtures()
	repo.rows = []alarms.AlarmRow{
		{AlarmID: "a-1", State: alarms.StateOK, MetricName: "cpu.idle_perc"},
		{AlarmID: "a-2", State: alarms.StateOK, MetricName: "cpu.idle_perc"},
	}
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	page, err := service.List(context.Background(), "t-1", alarms.AlarmFilter{}, "", 2, "/v2.0/alarms?limit=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.listLimit != 2 {
		t.Fatalf("expected limit forwarded, got %d", repo.listLimit)
	}
	if len(page.Links) != 2 {
		t.Fatalf("expected next link, got %v", page.Links)
	}
	if !strings.Contains(page.Links[1].Href, "offset=a-2") {
		t.Fatalf("expected last alarm id cursor, got %q", page.Links[1].Href)
	}
}

func TestShowUnknownAlarm(t *testing.T) {
	repo := engineFixtures()
	repo.rows = nil
	service := newTestService(t, repo, &stubHistoryRepo{}, &recordingBus{})

	if _, err := service.Show(context.Background(), "t-1", "missing", "/v2.0/alarms/missing"); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryPagesByNumericOffset(t *testing.T) {
	history := &stubHistoryRepo{rows: []alarms.StateHistoryRow{
		{AlarmID: "a-1", OldState: alarms.StateOK, NewState: alarms.StateAlarm},
		{AlarmID: "a-1", OldState: alarms.StateAlarm, NewState: alarms.StateOK},
	}}
	service := newTestService(t, engineFixtures(), history, &recordingBus{})

	page, err := service.History(context.Background(), "t-1", "a-1", 2, 2, "/v2.0/alarms/a-1/state-history?limit=2&offset=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.gotIDs) != 1 || history.gotIDs[0] != "a-1" {
		t.Fatalf("expected single alarm id, got %v", history.gotIDs)
	}
	if len(page.Links) != 2 || !strings.Contains(page.Links[1].Href, "offset=4") {
		t.Fatalf("expected numeric continuation, got %v", page.Links)
	}
}

func TestHistoryListResolvesDistinctIDs(t *testing.T) {
	repo := engineFixtures()
	repo.rows = []alarms.AlarmRow{
		{AlarmID: "a-1", MetricName: "cpu.idle_perc", MetricDimensions: "hostname=h1"},
		{AlarmID: "a-1", MetricName: "cpu.user_perc", MetricDimensions: "hostname=h1"},
		{AlarmID: "a-2", MetricName: "mem.free_mb", MetricDimensions: "hostname=h1"},
	}
	history := &stubHistoryRepo{}
	service := newTestService(t, repo, history, &recordingBus{})

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := service.HistoryList(context.Background(), "t-1", map[string]string{"hostname": "h1"}, &start, nil, 0, 10, "/v2.0/alarms/state-history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.listFilter.MetricDimensions["hostname"] != "h1" {
		t.Fatalf("expected dimension filter forwarded, got %v", repo.listFilter)
	}
	if len(history.gotIDs) != 2 {
		t.Fatalf("expected distinct alarm ids, got %v", history.gotIDs)
	}
	if history.gotStart == nil || !history.gotStart.Equal(start) {
		t.Fatalf("expected start bound forwarded, got %v", history.gotStart)
	}
}
