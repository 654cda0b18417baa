package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alarms "metrics-cloud/internal/alarms/domain"
)

const alarmRowColumns = `
a.id, a.state, a.lifecycle_state, a.link, a.state_updated_at, a.updated_at, a.created_at,
ad.id, ad.name, ad.severity, am.metric_name, am.metric_dimensions`

// AlarmRepository is the Postgres store for alarms and their associations.
// Tenancy is scoped through the owning alarm definition.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) (*AlarmRepository, error) {
	if db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	return &AlarmRepository{db: db}, nil
}

// GetAlarm fetches the denormalized row set for one alarm, one row per
// associated metric.
func (r *AlarmRepository) GetAlarm(ctx context.Context, tenantID, alarmID string) ([]alarms.AlarmRow, error) {
	query := `
SELECT ` + alarmRowColumns + `
FROM alarms a
JOIN alarm_definitions ad ON ad.id = a.alarm_definition_id
LEFT JOIN alarm_metrics am ON am.alarm_id = a.id
WHERE ad.tenant_id = $1 AND a.id = $2
ORDER BY a.id, am.metric_name`
	rows, err := r.db.QueryContext(ctx, query, tenantID, alarmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlarmRows(rows)
}

// GetAlarms fetches the denormalized row sets for alarms matching the
// filter, ordered by alarm id. The offset is the id of the last alarm on
// the previous page; the limit bounds alarms, not rows.
func (r *AlarmRepository) GetAlarms(ctx context.Context, tenantID string, filter alarms.AlarmFilter, offset string, limit int) ([]alarms.AlarmRow, error) {
	ids, err := r.selectAlarmIDs(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
SELECT ` + alarmRowColumns + `
FROM alarms a
JOIN alarm_definitions ad ON ad.id = a.alarm_definition_id
LEFT JOIN alarm_metrics am ON am.alarm_id = a.id
WHERE a.id = ANY($1)
ORDER BY a.id, am.metric_name`
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlarmRows(rows)
}

func (r *AlarmRepository) selectAlarmIDs(ctx context.Context, tenantID string, filter alarms.AlarmFilter, offset string, limit int) ([]string, error) {
	var builder strings.Builder
	builder.WriteString(`
SELECT a.id
FROM alarms a
JOIN alarm_definitions ad ON ad.id = a.alarm_definition_id
WHERE ad.tenant_id = $1`)
	args := []any{tenantID}

	if filter.AlarmDefinitionID != "" {
		args = append(args, filter.AlarmDefinitionID)
		fmt.Fprintf(&builder, " AND a.alarm_definition_id = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		fmt.Fprintf(&builder, " AND a.state = $%d", len(args))
	}
	if filter.LifecycleState != "" {
		args = append(args, filter.LifecycleState)
		fmt.Fprintf(&builder, " AND a.lifecycle_state = $%d", len(args))
	}
	if filter.MetricName != "" {
		args = append(args, filter.MetricName)
		fmt.Fprintf(&builder, ` AND EXISTS (
SELECT 1 FROM alarm_metrics m WHERE m.alarm_id = a.id AND m.metric_name = $%d)`, len(args))
	}
	// Dimensions are stored as a comma-joined key=value list; each required
	// pair must appear as a whole token.
	for key, value := range filter.MetricDimensions {
		args = append(args, key+"="+value)
		fmt.Fprintf(&builder, ` AND EXISTS (
SELECT 1 FROM alarm_metrics m WHERE m.alarm_id = a.id
AND (',' || m.metric_dimensions || ',') LIKE ('%%,' || $%d || ',%%'))`, len(args))
	}
	if offset != "" {
		args = append(args, offset)
		fmt.Fprintf(&builder, " AND a.id > $%d", len(args))
	}
	builder.WriteString(" ORDER BY a.id")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&builder, " LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAlarmMetrics fetches the metric association rows for an alarm.
func (r *AlarmRepository) GetAlarmMetrics(ctx context.Context, alarmID string) ([]alarms.AlarmMetricRow, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT alarm_id, metric_name, metric_dimensions
FROM alarm_metrics
WHERE alarm_id = $1
ORDER BY metric_name`, alarmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.AlarmMetricRow
	for rows.Next() {
		var row alarms.AlarmMetricRow
		var dimensions sql.NullString
		if err := rows.Scan(&row.AlarmID, &row.Name, &dimensions); err != nil {
			return nil, err
		}
		row.Dimensions = dimensions.String
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetSubAlarms fetches the sub-alarm rows for an alarm. Every returned row
// carries the same alarm definition id.
func (r *AlarmRepository) GetSubAlarms(ctx context.Context, tenantID, alarmID string) ([]alarms.SubAlarmRow, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT sa.id, sa.alarm_id, a.alarm_definition_id, sa.expression
FROM sub_alarms sa
JOIN alarms a ON a.id = sa.alarm_id
JOIN alarm_definitions ad ON ad.id = a.alarm_definition_id
WHERE ad.tenant_id = $1 AND sa.alarm_id = $2
ORDER BY sa.id`, tenantID, alarmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.SubAlarmRow
	for rows.Next() {
		var row alarms.SubAlarmRow
		if err := rows.Scan(&row.SubAlarmID, &row.AlarmID, &row.AlarmDefinitionID, &row.Expression); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateAlarm persists the new state, lifecycle state and link and returns
// the state prior to the write. The row is locked for the duration of the
// statement, so two concurrent updates to the same alarm cannot observe
// the same old state.
func (r *AlarmRepository) UpdateAlarm(ctx context.Context, tenantID, alarmID string, cmd alarms.UpdateCommand) (string, error) {
	now := time.Now().UTC()
	var oldState string
	err := r.db.QueryRowContext(ctx, `
UPDATE alarms a
SET state = $3,
	lifecycle_state = $4,
	link = $5,
	updated_at = $6,
	state_updated_at = CASE WHEN prev.state IS DISTINCT FROM $3 THEN $6 ELSE a.state_updated_at END
FROM (
	SELECT al.id, al.state
	FROM alarms al
	JOIN alarm_definitions ad ON ad.id = al.alarm_definition_id
	WHERE ad.tenant_id = $1 AND al.id = $2
	FOR UPDATE OF al
) prev
WHERE a.id = prev.id
RETURNING prev.state`,
		tenantID, alarmID, cmd.State, nullableString(cmd.LifecycleState), nullableString(cmd.Link), now,
	).Scan(&oldState)
	if errors.Is(err, sql.ErrNoRows) {
		return "", alarms.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return oldState, nil
}

// DeleteAlarm removes an alarm and its metric and sub-alarm associations
// in one transaction.
func (r *AlarmRepository) DeleteAlarm(ctx context.Context, tenantID, alarmID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alarm_metrics WHERE alarm_id = $1`, alarmID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sub_alarms WHERE alarm_id = $1`, alarmID); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
DELETE FROM alarms a
USING alarm_definitions ad
WHERE ad.id = a.alarm_definition_id AND ad.tenant_id = $1 AND a.id = $2`, tenantID, alarmID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return tx.Commit()
}

// GetAlarmDefinition fetches the definition owning an alarm.
func (r *AlarmRepository) GetAlarmDefinition(ctx context.Context, tenantID, alarmID string) (alarms.AlarmDefinitionRow, error) {
	var row alarms.AlarmDefinitionRow
	var description sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT ad.id, ad.tenant_id, ad.name, ad.description, ad.severity, ad.expression
FROM alarm_definitions ad
JOIN alarms a ON a.alarm_definition_id = ad.id
WHERE ad.tenant_id = $1 AND a.id = $2 AND ad.deleted_at IS NULL`,
		tenantID, alarmID,
	).Scan(&row.ID, &row.TenantID, &row.Name, &description, &row.Severity, &row.Expression)
	if errors.Is(err, sql.ErrNoRows) {
		return alarms.AlarmDefinitionRow{}, alarms.ErrDefinitionNotFound
	}
	if err != nil {
		return alarms.AlarmDefinitionRow{}, err
	}
	row.Description = description.String
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarmRows(rows *sql.Rows) ([]alarms.AlarmRow, error) {
	var result []alarms.AlarmRow
	for rows.Next() {
		row, err := scanAlarmRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanAlarmRow(scanner rowScanner) (alarms.AlarmRow, error) {
	var row alarms.AlarmRow
	var lifecycleState sql.NullString
	var link sql.NullString
	var metricName sql.NullString
	var metricDimensions sql.NullString
	if err := scanner.Scan(
		&row.AlarmID,
		&row.State,
		&lifecycleState,
		&link,
		&row.StateUpdatedAt,
		&row.UpdatedAt,
		&row.CreatedAt,
		&row.AlarmDefinitionID,
		&row.AlarmDefinitionName,
		&row.Severity,
		&metricName,
		&metricDimensions,
	); err != nil {
		return alarms.AlarmRow{}, err
	}
	row.StateUpdatedAt = row.StateUpdatedAt.UTC()
	row.UpdatedAt = row.UpdatedAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	if lifecycleState.Valid {
		row.LifecycleState = &lifecycleState.String
	}
	if link.Valid {
		row.Link = &link.String
	}
	row.MetricName = metricName.String
	row.MetricDimensions = metricDimensions.String
	return row, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
