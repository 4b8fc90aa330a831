package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/taskfarm/internal/domain/farm"
	"github.com/ahrav/taskfarm/internal/infra/storage"
)

var _ farm.RunRepository = (*runStore)(nil)

// runStore implements farm.RunRepository on PostgreSQL. A run is one row in
// runs plus one row per worker in run_assignments.
type runStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRunStore creates a PostgreSQL-backed run repository.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *runStore {
	return &runStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const (
	insertRun = `
INSERT INTO runs (run_id, policy, queue_order, workers, items, tasks_sent, sentinels_sent, results, started_at, elapsed_ns)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertAssignment = `
INSERT INTO run_assignments (run_id, worker_id, tasks) VALUES ($1, $2, $3)`

	selectRunColumns = `
SELECT run_id, policy, queue_order, workers, items, tasks_sent, sentinels_sent, results, started_at, elapsed_ns
FROM runs`

	selectAssignments = `
SELECT run_id, worker_id, tasks FROM run_assignments WHERE run_id = ANY($1)`
)

// Save persists a finished run and its per-worker assignment counts.
func (r *runStore) Save(ctx context.Context, report *farm.RunReport) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("run_id", report.RunID.String()),
		attribute.String("policy", report.Policy.String()),
		attribute.Int("workers", report.Workers),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.save_run", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		id := pgtype.UUID{Bytes: report.RunID, Valid: true}
		_, err = tx.Exec(ctx, insertRun,
			id,
			string(report.Policy),
			string(report.QueueOrder),
			report.Workers,
			report.Items,
			report.TasksSent,
			report.SentinelsSent,
			report.Results,
			report.StartedAt,
			report.Elapsed.Nanoseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert run error: %w", err)
		}

		batch := new(pgx.Batch)
		for worker, tasks := range report.Assignments {
			batch.Queue(insertAssignment, id, int(worker), tasks)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert assignments error: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// Get loads one run by id. It returns farm.ErrRunNotFound for unknown ids.
func (r *runStore) Get(ctx context.Context, id uuid.UUID) (*farm.RunReport, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("run_id", id.String()))

	var report *farm.RunReport
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_run", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, selectRunColumns+` WHERE run_id = $1`, pgtype.UUID{Bytes: id, Valid: true})
		got, err := scanRun(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", farm.ErrRunNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get run error: %w", err)
		}

		if err := r.loadAssignments(ctx, map[uuid.UUID]*farm.RunReport{got.RunID: got}); err != nil {
			return err
		}
		report = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// List returns up to limit runs, most recently started first.
func (r *runStore) List(ctx context.Context, limit int) ([]*farm.RunReport, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int("limit", limit))

	var reports []*farm.RunReport
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_runs", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, selectRunColumns+` ORDER BY started_at DESC LIMIT $1`, limit)
		if err != nil {
			return fmt.Errorf("list runs error: %w", err)
		}
		defer rows.Close()

		byID := make(map[uuid.UUID]*farm.RunReport)
		for rows.Next() {
			report, err := scanRun(rows)
			if err != nil {
				return fmt.Errorf("scan run error: %w", err)
			}
			reports = append(reports, report)
			byID[report.RunID] = report
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list runs rows error: %w", err)
		}

		return r.loadAssignments(ctx, byID)
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *runStore) loadAssignments(ctx context.Context, byID map[uuid.UUID]*farm.RunReport) error {
	if len(byID) == 0 {
		return nil
	}

	ids := make([]pgtype.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, pgtype.UUID{Bytes: id, Valid: true})
	}

	rows, err := r.db.Query(ctx, selectAssignments, ids)
	if err != nil {
		return fmt.Errorf("load assignments error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runID  pgtype.UUID
			worker int32
			tasks  int32
		)
		if err := rows.Scan(&runID, &worker, &tasks); err != nil {
			return fmt.Errorf("scan assignment error: %w", err)
		}
		if report, ok := byID[uuid.UUID(runID.Bytes)]; ok {
			report.Assignments[farm.WorkerID(worker)] = int(tasks)
		}
	}
	return rows.Err()
}

func scanRun(row pgx.Row) (*farm.RunReport, error) {
	var (
		id            pgtype.UUID
		policy, order string
		workers       int32
		items         int32
		tasksSent     int32
		sentinelsSent int32
		results       []float64
		startedAt     time.Time
		elapsedNS     int64
	)
	if err := row.Scan(&id, &policy, &order, &workers, &items, &tasksSent, &sentinelsSent, &results, &startedAt, &elapsedNS); err != nil {
		return nil, err
	}

	if results == nil {
		results = []float64{}
	}
	return &farm.RunReport{
		RunID:         uuid.UUID(id.Bytes),
		Policy:        farm.Policy(policy),
		QueueOrder:    farm.QueueOrder(order),
		Workers:       int(workers),
		Items:         int(items),
		Results:       results,
		Assignments:   make(map[farm.WorkerID]int, workers),
		TasksSent:     int(tasksSent),
		SentinelsSent: int(sentinelsSent),
		StartedAt:     startedAt,
		Elapsed:       time.Duration(elapsedNS),
	}, nil
}
