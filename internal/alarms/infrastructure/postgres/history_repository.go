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

// StateHistoryRepository is the Postgres store for alarm state-history
// records written by the upstream evaluator.
type StateHistoryRepository struct {
	db *sql.DB
}

// NewStateHistoryRepository constructs a repository.
func NewStateHistoryRepository(db *sql.DB) (*StateHistoryRepository, error) {
	if db == nil {
		return nil, errors.New("history repo: nil db")
	}
	return &StateHistoryRepository{db: db}, nil
}

// AlarmHistory fetches state-history records for the given alarm ids within
// [start, end], newest first. Nil bounds are unbounded; an empty id set
// yields no records.
func (r *StateHistoryRepository) AlarmHistory(ctx context.Context, tenantID string, alarmIDs []string, offset, limit int, start, end *time.Time) ([]alarms.StateHistoryRow, error) {
	if len(alarmIDs) == 0 {
		return nil, nil
	}

	var builder strings.Builder
	builder.WriteString(`
SELECT alarm_id, old_state, new_state, reason, reason_data, ts
FROM alarm_state_history
WHERE tenant_id = $1 AND alarm_id = ANY($2)`)
	args := []any{tenantID, alarmIDs}

	if start != nil {
		args = append(args, start.UTC())
		fmt.Fprintf(&builder, " AND ts >= $%d", len(args))
	}
	if end != nil {
		args = append(args, end.UTC())
		fmt.Fprintf(&builder, " AND ts <= $%d", len(args))
	}
	builder.WriteString(" ORDER BY ts DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&builder, " LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&builder, " OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.StateHistoryRow
	for rows.Next() {
		var row alarms.StateHistoryRow
		var reason sql.NullString
		var reasonData sql.NullString
		if err := rows.Scan(&row.AlarmID, &row.OldState, &row.NewState, &reason, &reasonData, &row.Timestamp); err != nil {
			return nil, err
		}
		row.Reason = reason.String
		row.ReasonData = reasonData.String
		row.Timestamp = row.Timestamp.UTC()
		result = append(result, row)
	}
	return result, rows.Err()
}
