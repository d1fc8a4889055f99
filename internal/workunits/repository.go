package workunits

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/crowdocs/crowdocs/pkg/pagination"
	"github.com/crowdocs/crowdocs/pkg/query"
	"github.com/crowdocs/crowdocs/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a work unit repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "workunits"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[WorkUnit], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "WorkflowName", "SourceURL")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count work units: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	units, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanWorkUnit)
	if err != nil {
		return nil, fmt.Errorf("query work units: %w", err)
	}

	result := pagination.NewPageResult(units, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id int64) (*WorkUnit, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	u, err := repository.QueryOne(ctx, r.db, q, args, scanWorkUnit)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &u, nil
}

func (r *repo) ListByPhase(ctx context.Context, phase Phase, limit int) ([]WorkUnit, error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("Phase", string(phase)).
		WhereEquals("Done", false).
		WhereEquals("Flagged", false)

	q, args := qb.BuildPage(1, limit)

	units, err := repository.QueryMany(ctx, r.db, q, args, scanWorkUnit)
	if err != nil {
		return nil, fmt.Errorf("query %s work units: %w", phase, err)
	}
	return units, nil
}

func (r *repo) ListInFlight(ctx context.Context, limit int) ([]WorkUnit, error) {
	q := fmt.Sprintf(
		`SELECT %s FROM %s
		 WHERE w.done = FALSE AND w.flagged = FALSE AND jsonb_array_length(w.in_progress) > 0
		 ORDER BY w.start_time LIMIT $1`,
		projection.Columns(), projection.From(),
	)

	units, err := repository.QueryMany(ctx, r.db, q, []any{limit}, scanWorkUnit)
	if err != nil {
		return nil, fmt.Errorf("query in-flight work units: %w", err)
	}
	return units, nil
}

func (r *repo) Create(ctx context.Context, unit *WorkUnit) (*WorkUnit, error) {
	if unit.Context == nil {
		unit.Context = NewContext()
	}

	cols, err := marshalColumns(unit)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO work_units(
			id, workflow_name, source_url, phase, done, flagged, flag_reason, page_count,
			task_groups, context, in_progress, finished,
			classification_results, taxonomy_results, extraction_results,
			cost, start_time, end_time, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1)`

	_, err = r.db.ExecContext(ctx, q,
		unit.ID, unit.WorkflowName, unit.SourceURL, unit.Phase,
		unit.Done, unit.Flagged, unit.FlagReason, unit.PageCount,
		cols["task_groups"], cols["context"], cols["in_progress"], cols["finished"],
		cols["classification_results"], cols["taxonomy_results"], cols["extraction_results"],
		unit.Cost, unit.StartTime, unit.EndTime,
	)
	if err != nil {
		return nil, repository.MapError(fmt.Errorf("insert work unit %d: %w", unit.ID, err), ErrNotFound, ErrDuplicate)
	}

	unit.Version = 1
	r.logger.Info("work unit created", "id", unit.ID, "workflow", unit.WorkflowName)
	return unit, nil
}

func (r *repo) Save(ctx context.Context, unit *WorkUnit) error {
	if unit.Context == nil {
		unit.Context = NewContext()
	}

	cols, err := marshalColumns(unit)
	if err != nil {
		return err
	}

	q := `
		UPDATE work_units SET
			phase = $2, done = $3, flagged = $4, flag_reason = $5, page_count = $6,
			context = $7, in_progress = $8, finished = $9,
			classification_results = $10, taxonomy_results = $11, extraction_results = $12,
			cost = $13, end_time = $14,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $15`

	err = repository.ExecVersioned(ctx, r.db, q,
		unit.ID, unit.Phase, unit.Done, unit.Flagged, unit.FlagReason, unit.PageCount,
		cols["context"], cols["in_progress"], cols["finished"],
		cols["classification_results"], cols["taxonomy_results"], cols["extraction_results"],
		unit.Cost, unit.EndTime, unit.Version,
	)
	if err != nil {
		return fmt.Errorf("save work unit %d: %w", unit.ID, err)
	}

	unit.Version++
	return nil
}

func (r *repo) Flag(ctx context.Context, id int64, reason string) error {
	q := `UPDATE work_units SET flagged = TRUE, flag_reason = $2, updated_at = now() WHERE id = $1`

	if err := repository.ExecExpectOne(ctx, r.db, q, id, reason); err != nil {
		return repository.MapError(fmt.Errorf("flag work unit %d: %w", id, err), ErrNotFound, ErrDuplicate)
	}

	r.logger.Warn("work unit flagged", "id", id, "reason", reason)
	return nil
}
