package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/core"
)

const eventColumns = "id, event_type, timestamp, schedule_event_id, attributes"

func getPendingEvents(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance) ([]*history.Event, error) {
	rows, err := tx.QueryContext(
		ctx,
		"SELECT "+eventColumns+" FROM `pending_events` WHERE instance_id = ? AND execution_id = ? ORDER BY rowid",
		instance.InstanceID,
		instance.ExecutionID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting pending events: %w", err)
	}
	defer rows.Close()

	pendingEvents := make([]*history.Event, 0)

	for rows.Next() {
		pendingEvent, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("reading event: %w", err)
		}

		pendingEvents = append(pendingEvents, pendingEvent)
	}

	return pendingEvents, rows.Err()
}

func getHistory(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	query := "SELECT sequence_id, " + eventColumns + " FROM `history` WHERE instance_id = ? AND execution_id = ?"
	args := []any{instance.InstanceID, instance.ExecutionID}

	if lastSequenceID != nil {
		query += " AND sequence_id > ?"
		args = append(args, *lastSequenceID)
	}

	query += " ORDER BY sequence_id"

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}
	defer rows.Close()

	events := make([]*history.Event, 0)

	for rows.Next() {
		var sequenceID int64
		historyEvent, err := scanEvent(rows, &sequenceID)
		if err != nil {
			return nil, fmt.Errorf("reading event: %w", err)
		}

		historyEvent.SequenceID = sequenceID
		events = append(events, historyEvent)
	}

	return events, rows.Err()
}

type Scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads an event from a row. Additional columns selected before the event columns are
// scanned into prefix.
func scanEvent(row Scanner, prefix ...any) (*history.Event, error) {
	var attributes []byte
	var timestamp int64

	event := &history.Event{}

	dest := append(prefix, &event.ID, &event.Type, &timestamp, &event.ScheduleEventID, &attributes)
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	a, err := history.DeserializeAttributes(event.Type, attributes)
	if err != nil {
		return nil, fmt.Errorf("deserializing attributes: %w", err)
	}

	event.Timestamp = fromUnixNano(timestamp)
	event.Attributes = a

	return event, nil
}

func insertPendingEvents(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance, newEvents []*history.Event) error {
	return insertEvents(ctx, tx, "pending_events", instance, newEvents, false)
}

func insertHistoryEvents(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance, historyEvents []*history.Event) error {
	return insertEvents(ctx, tx, "history", instance, historyEvents, true)
}

func insertEvents(ctx context.Context, tx *sql.Tx, tableName string, instance *core.WorkflowInstance, events []*history.Event, withSequenceID bool) error {
	columns := "id, instance_id, execution_id, event_type, timestamp, schedule_event_id, attributes"
	placeholders := "(?, ?, ?, ?, ?, ?, ?)"
	if withSequenceID {
		columns += ", sequence_id"
		placeholders = "(?, ?, ?, ?, ?, ?, ?, ?)"
	}

	const batchSize = 20
	for batchStart := 0; batchStart < len(events); batchStart += batchSize {
		batchEnd := min(batchStart+batchSize, len(events))
		batchEvents := events[batchStart:batchEnd]

		query := "INSERT INTO `" + tableName + "` (" + columns + ") VALUES " + placeholders +
			strings.Repeat(", "+placeholders, len(batchEvents)-1)

		args := make([]any, 0, len(batchEvents)*8)

		for _, newEvent := range batchEvents {
			a, err := history.SerializeAttributes(newEvent.Attributes)
			if err != nil {
				return err
			}

			args = append(args,
				newEvent.ID, instance.InstanceID, instance.ExecutionID, newEvent.Type,
				newEvent.Timestamp.UnixNano(), newEvent.ScheduleEventID, a)
			if withSequenceID {
				args = append(args, newEvent.SequenceID)
			}
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func removePendingEvents(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)+2)
	args = append(args, instance.InstanceID, instance.ExecutionID)
	for _, e := range events {
		args = append(args, e.ID)
	}

	_, err := tx.ExecContext(
		ctx,
		fmt.Sprintf(`DELETE FROM pending_events WHERE instance_id = ? AND execution_id = ? AND id IN (?%v)`, strings.Repeat(",?", len(events)-1)),
		args...,
	)

	return err
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
