package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/pagination"
	"github.com/crowdocs/crowdocs/pkg/query"
	"github.com/crowdocs/crowdocs/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	keys       *keyedMutex
	pagination pagination.Config
}

// New creates a dedup document repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "documents"),
		keys:       newKeyedMutex(),
		pagination: pagination,
	}
}

var projection = query.
	NewProjection("dedup_documents", "d").
	Map("key", "Key").
	Map("fields", "Fields").
	Map("data", "Data").
	Map("ready", "Ready").
	Map("taxonomy_results", "TaxonomyResults").
	Map("version", "Version").
	Map("created_at", "CreatedAt").
	Map("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field: "CreatedAt",
}

const documentColumns = `key, fields, data, ready, taxonomy_results, version, created_at, updated_at`

func (r *repo) List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Document], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Key")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count dedup documents: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	docs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query dedup documents: %w", err)
	}

	result := pagination.NewPageResult(docs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, key string) (*Document, error) {
	q := fmt.Sprintf(`SELECT %s FROM dedup_documents WHERE key = $1`, documentColumns)

	d, err := repository.QueryOne(ctx, r.db, q, []any{key}, scanDocument)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &d, nil
}

func (r *repo) FindOrCreate(ctx context.Context, fields map[string]string) (*Document, bool, error) {
	if len(fields) == 0 {
		return nil, false, ErrEmptyKey
	}

	key := Key(fields)
	unlock := r.keys.Lock(key)
	defer unlock()

	d, err := r.Find(ctx, key)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	created, err := r.insert(ctx, key, fields)
	if err != nil {
		// Lost an insert race with another process; the keyed mutex only
		// covers this one. Fall back to the row the winner created.
		if repository.IsDuplicate(err) {
			d, ferr := r.Find(ctx, key)
			if ferr != nil {
				return nil, false, ferr
			}
			return d, false, nil
		}
		return nil, false, err
	}

	r.logger.Info("dedup document created", "key", key)
	return created, true, nil
}

func (r *repo) MarkReady(
	ctx context.Context,
	fields map[string]string,
	dataMerge map[string]any,
	taxonomy []workunits.PhaseResult,
) error {
	if len(fields) == 0 {
		return ErrEmptyKey
	}

	key := Key(fields)
	unlock := r.keys.Lock(key)
	defer unlock()

	d, err := r.Find(ctx, key)
	if errors.Is(err, ErrNotFound) {
		// Row deleted since the unit passed classification; recreate it.
		d, err = r.insert(ctx, key, fields)
	}
	if err != nil {
		return err
	}

	if d.Data == nil {
		d.Data = map[string]any{}
	}
	maps.Copy(d.Data, dataMerge)

	dataJSON, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode dedup data for %q: %w", key, err)
	}
	taxJSON, err := json.Marshal(orEmpty(taxonomy))
	if err != nil {
		return fmt.Errorf("encode taxonomy results for %q: %w", key, err)
	}

	q := `
		UPDATE dedup_documents
		SET data = $2, taxonomy_results = $3, ready = TRUE,
			version = version + 1, updated_at = now()
		WHERE key = $1 AND version = $4`

	if err := repository.ExecVersioned(ctx, r.db, q, key, dataJSON, taxJSON, d.Version); err != nil {
		return fmt.Errorf("mark dedup document %q ready: %w", key, err)
	}

	r.logger.Info("dedup document ready", "key", key)
	return nil
}

func (r *repo) Delete(ctx context.Context, key string) error {
	unlock := r.keys.Lock(key)
	defer unlock()

	err := repository.ExecExpectOne(ctx, r.db, `DELETE FROM dedup_documents WHERE key = $1`, key)
	if err != nil {
		return repository.MapError(fmt.Errorf("delete dedup document %q: %w", key, err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (r *repo) insert(ctx context.Context, key string, fields map[string]string) (*Document, error) {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode dedup fields for %q: %w", key, err)
	}

	q := fmt.Sprintf(`
		INSERT INTO dedup_documents(key, fields, data, ready, taxonomy_results, version)
		VALUES ($1, $2, '{}'::jsonb, FALSE, '[]'::jsonb, 1)
		RETURNING %s`, documentColumns)

	d, err := repository.QueryOne(ctx, r.db, q, []any{key, fieldsJSON}, scanDocument)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d        Document
		fields   []byte
		data     []byte
		taxonomy []byte
	)

	err := s.Scan(
		&d.Key,
		&fields,
		&data,
		&d.Ready,
		&taxonomy,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}

	if err := json.Unmarshal(fields, &d.Fields); err != nil {
		return d, fmt.Errorf("decode fields for dedup document %q: %w", d.Key, err)
	}
	if err := json.Unmarshal(data, &d.Data); err != nil {
		return d, fmt.Errorf("decode data for dedup document %q: %w", d.Key, err)
	}
	if err := json.Unmarshal(taxonomy, &d.TaxonomyResults); err != nil {
		return d, fmt.Errorf("decode taxonomy results for dedup document %q: %w", d.Key, err)
	}

	return d, nil
}

func orEmpty(v []workunits.PhaseResult) []workunits.PhaseResult {
	if v == nil {
		return []workunits.PhaseResult{}
	}
	return v
}
