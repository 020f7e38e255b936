package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/loanflow/backend"
)

func (sb *sqliteBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM instances i WHERE i.completed_at IS NULL",
	).Scan(&s.ActiveWorkflowInstances); err != nil {
		return nil, fmt.Errorf("querying active instances: %w", err)
	}

	// Workflow instances ready to be picked up
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM instances i
			WHERE
				(i.locked_until IS NULL OR i.locked_until < ?)
				AND i.completed_at IS NULL
				AND EXISTS (
					SELECT 1
						FROM pending_events
						WHERE instance_id = i.id AND execution_id = i.execution_id
				)`,
		time.Now().UnixNano(),
	).Scan(&s.PendingWorkflowTasks); err != nil {
		return nil, fmt.Errorf("querying pending workflow tasks: %w", err)
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&s.PendingActivities); err != nil {
		return nil, fmt.Errorf("querying pending activities: %w", err)
	}

	return s, tx.Commit()
}
