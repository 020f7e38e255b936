package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/loanflow/backend"
	"github.com/cschleiden/loanflow/backend/history"
	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/core"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	"github.com/cschleiden/loanflow/internal/tracing"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// NewInMemoryBackend creates a backend on a private in-memory database. The database lives as long
// as the backend.
func NewInMemoryBackend(opts ...option) *sqliteBackend {
	b := newSqliteBackend(":memory:", opts...)

	b.db.SetMaxOpenConns(1)
	b.db.SetConnMaxIdleTime(0)
	b.db.SetConnMaxLifetime(0)

	if b.options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	b := newSqliteBackend(fmt.Sprintf("file:%v?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path), opts...)

	// SQLite allows a single writer at a time
	b.db.SetMaxOpenConns(1)

	if b.options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	options := &options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	workerName := options.WorkerName
	if workerName == "" {
		workerName = fmt.Sprintf("worker-%v", uuid.NewString())
	}

	return &sqliteBackend{
		db:         db,
		workerName: workerName,
		options:    options,
	}
}

type sqliteBackend struct {
	db         *sql.DB
	workerName string
	options    *options
}

var _ backend.Backend = (*sqliteBackend)(nil)

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := sqlite.WithInstance(sb.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return tracing.Tracer(sb.options.TracerProvider)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
}

func (sb *sqliteBackend) Options() *backend.Options {
	return &sb.options.Options
}

func (sb *sqliteBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	a, ok := event.Attributes.(*history.ExecutionStartedAttributes)
	if !ok {
		return fmt.Errorf("expected %v event, got %v", history.EventType_WorkflowExecutionStarted, event.Type)
	}

	// At most one active execution per instance id
	var active int
	if err := tx.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM `instances` WHERE id = ? AND completed_at IS NULL",
		instance.InstanceID,
	).Scan(&active); err != nil {
		return fmt.Errorf("checking for active instance: %w", err)
	}

	if active > 0 {
		return backend.ErrInstanceAlreadyExists
	}

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO `instances` (id, execution_id, workflow_name, created_at, state) VALUES (?, ?, ?, ?, ?)",
		instance.InstanceID,
		instance.ExecutionID,
		a.Name,
		time.Now().UnixNano(),
		core.WorkflowInstanceStateActive,
	); err != nil {
		return fmt.Errorf("inserting workflow instance: %w", err)
	}

	// Initial history is empty, store only new events
	if err := insertPendingEvents(ctx, tx, instance, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting new event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating workflow instance: %w", err)
	}

	return nil
}

func (sb *sqliteBackend) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	state, err := getInstanceState(ctx, tx, instance)
	if err != nil {
		return err
	}

	// Nothing to cancel
	if state == core.WorkflowInstanceStateFinished {
		return nil
	}

	if err := insertPendingEvents(ctx, tx, instance, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting cancellation event: %w", err)
	}

	return tx.Commit()
}

func (sb *sqliteBackend) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	h, err := getHistory(ctx, tx, instance, lastSequenceID)
	if err != nil {
		return nil, fmt.Errorf("getting workflow history: %w", err)
	}

	return h, tx.Commit()
}

func (sb *sqliteBackend) GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WorkflowInstanceStateActive, err
	}
	defer tx.Rollback()

	state, err := getInstanceState(ctx, tx, instance)
	if err != nil {
		return state, err
	}

	return state, tx.Commit()
}

func getInstanceState(ctx context.Context, tx *sql.Tx, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	row := tx.QueryRowContext(
		ctx,
		"SELECT state FROM `instances` WHERE id = ? AND execution_id = ?",
		instance.InstanceID,
		instance.ExecutionID,
	)

	var state core.WorkflowInstanceState
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WorkflowInstanceStateActive, backend.ErrInstanceNotFound
		}

		return core.WorkflowInstanceStateActive, fmt.Errorf("getting workflow instance state: %w", err)
	}

	return state, nil
}

func (sb *sqliteBackend) GetLatestInstance(ctx context.Context, instanceID string) (*core.WorkflowInstance, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT execution_id FROM `instances` WHERE id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1",
		instanceID,
	)

	var executionID string
	if err := row.Scan(&executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("getting latest instance: %w", err)
	}

	return core.NewWorkflowInstance(instanceID, executionID), nil
}

func (sb *sqliteBackend) SignalWorkflow(ctx context.Context, instanceID string, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(
		ctx,
		"SELECT execution_id FROM `instances` WHERE id = ? AND completed_at IS NULL ORDER BY created_at DESC LIMIT 1",
		instanceID,
	)

	var executionID string
	if err := row.Scan(&executionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrInstanceNotFound
		}

		return fmt.Errorf("getting active instance: %w", err)
	}

	instance := core.NewWorkflowInstance(instanceID, executionID)
	if err := insertPendingEvents(ctx, tx, instance, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting signal event: %w", err)
	}

	return tx.Commit()
}

func (sb *sqliteBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock next workflow task by finding an unlocked instance with new events to process
	// (work around missing LIMIT support in sqlite driver for UPDATE statements by using sub-query)
	now := time.Now()
	row := tx.QueryRowContext(
		ctx,
		`UPDATE instances
			SET locked_until = ?, worker = ?
			WHERE rowid = (
				SELECT rowid FROM instances i
					WHERE
						(locked_until IS NULL OR locked_until < ?)
						AND completed_at IS NULL
						AND EXISTS (
							SELECT 1
								FROM pending_events
								WHERE instance_id = i.id AND execution_id = i.execution_id
						)
					ORDER BY created_at
					LIMIT 1
			) RETURNING id, execution_id, state, last_sequence_id`,
		now.Add(sb.options.WorkflowLockTimeout).UnixNano(), // new locked_until
		sb.workerName,
		now.UnixNano(), // locked_until
	)

	var instanceID, executionID string
	var state core.WorkflowInstanceState
	var lastSequenceID int64
	if err := row.Scan(&instanceID, &executionID, &state, &lastSequenceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking workflow task: %w", err)
	}

	wfi := core.NewWorkflowInstance(instanceID, executionID)

	pendingEvents, err := getPendingEvents(ctx, tx, wfi)
	if err != nil {
		return nil, fmt.Errorf("getting pending events: %w", err)
	}

	// Return if there aren't any new events
	if len(pendingEvents) == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &backend.WorkflowTask{
		ID:                    wfi.String(),
		WorkflowInstance:      wfi,
		WorkflowInstanceState: state,
		LastSequenceID:        lastSequenceID,
		NewEvents:             pendingEvents,
	}, nil
}

func (sb *sqliteBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	executedEvents, activityEvents []*history.Event,
) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	instance := task.WorkflowInstance

	var completedAt *int64
	if state == core.WorkflowInstanceStateFinished {
		t := time.Now().UnixNano()
		completedAt = &t
	}

	lastSequenceID := task.LastSequenceID
	if len(executedEvents) > 0 {
		lastSequenceID = executedEvents[len(executedEvents)-1].SequenceID
	}

	// Unlock instance
	if res, err := tx.ExecContext(
		ctx,
		`UPDATE instances SET locked_until = NULL, worker = NULL, completed_at = COALESCE(completed_at, ?), state = ?, last_sequence_id = ?
			WHERE id = ? AND execution_id = ? AND worker = ?`,
		completedAt,
		state,
		lastSequenceID,
		instance.InstanceID,
		instance.ExecutionID,
		sb.workerName,
	); err != nil {
		return fmt.Errorf("unlocking workflow instance: %w", err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for unlocked workflow instances: %w", err)
	} else if n != 1 {
		return backend.ErrTaskLockLost
	}

	// Remove handled events
	if err := removePendingEvents(ctx, tx, instance, task.NewEvents); err != nil {
		return fmt.Errorf("deleting handled new events: %w", err)
	}

	// Add events from last execution to history
	if err := insertHistoryEvents(ctx, tx, instance, executedEvents); err != nil {
		return fmt.Errorf("inserting new history events: %w", err)
	}

	if state == core.WorkflowInstanceStateFinished {
		// Events arriving for a finished instance are never processed
		if _, err := tx.ExecContext(
			ctx, "DELETE FROM `pending_events` WHERE instance_id = ? AND execution_id = ?", instance.InstanceID, instance.ExecutionID,
		); err != nil {
			return fmt.Errorf("deleting pending events of finished instance: %w", err)
		}
	} else {
		for _, event := range activityEvents {
			if err := scheduleActivity(ctx, tx, instance, event); err != nil {
				return fmt.Errorf("scheduling activity: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (sb *sqliteBackend) ExtendWorkflowTask(ctx context.Context, task *backend.WorkflowTask) error {
	until := time.Now().Add(sb.options.WorkflowLockTimeout)
	res, err := sb.db.ExecContext(
		ctx,
		`UPDATE instances SET locked_until = ? WHERE id = ? AND execution_id = ? AND worker = ?`,
		until.UnixNano(),
		task.WorkflowInstance.InstanceID,
		task.WorkflowInstance.ExecutionID,
		sb.workerName,
	)
	if err != nil {
		return fmt.Errorf("extending workflow task lock: %w", err)
	}

	if rowsAffected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("determining if workflow task was extended: %w", err)
	} else if rowsAffected == 0 {
		return backend.ErrTaskLockLost
	}

	return nil
}

func (sb *sqliteBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock next activity
	// (work around missing LIMIT support in sqlite driver for UPDATE statements by using sub-query)
	now := time.Now()
	row := tx.QueryRowContext(
		ctx,
		`UPDATE activities
			SET locked_until = ?, worker = ?
			WHERE rowid = (
				SELECT rowid FROM activities WHERE locked_until IS NULL OR locked_until < ? ORDER BY rowid LIMIT 1
			) RETURNING instance_id, execution_id, `+eventColumns,
		now.Add(sb.options.ActivityLockTimeout).UnixNano(),
		sb.workerName,
		now.UnixNano(),
	)

	var instanceID, executionID string
	event, err := scanEvent(row, &instanceID, &executionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking activity task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &backend.ActivityTask{
		ID:               event.ID,
		WorkflowInstance: core.NewWorkflowInstance(instanceID, executionID),
		Event:            event,
	}, nil
}

func (sb *sqliteBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	instance := task.WorkflowInstance

	// Remove activity
	if res, err := tx.ExecContext(
		ctx,
		`DELETE FROM activities WHERE instance_id = ? AND execution_id = ? AND id = ? AND worker = ?`,
		instance.InstanceID,
		instance.ExecutionID,
		task.ID,
		sb.workerName,
	); err != nil {
		return fmt.Errorf("deleting activity: %w", err)
	} else if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("checking for deleted activities: %w", err)
	} else if n != 1 {
		return backend.ErrTaskLockLost
	}

	state, err := getInstanceState(ctx, tx, instance)
	if err != nil {
		return err
	}

	// The result of an activity of a finished instance has nowhere to go
	if state == core.WorkflowInstanceStateActive {
		if err := insertPendingEvents(ctx, tx, instance, []*history.Event{result}); err != nil {
			return fmt.Errorf("inserting new events for completed activity: %w", err)
		}
	}

	return tx.Commit()
}

func (sb *sqliteBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	until := time.Now().Add(sb.options.ActivityLockTimeout)
	res, err := sb.db.ExecContext(
		ctx,
		`UPDATE activities SET locked_until = ? WHERE id = ? AND worker = ?`,
		until.UnixNano(),
		task.ID,
		sb.workerName,
	)
	if err != nil {
		return fmt.Errorf("extending activity lock: %w", err)
	}

	if rowsAffected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("determining if activity was extended: %w", err)
	} else if rowsAffected == 0 {
		return backend.ErrTaskLockLost
	}

	return nil
}
