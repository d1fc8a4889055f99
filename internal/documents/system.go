package documents

import (
	"context"

	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/pagination"
)

// System defines the public contract for the deduplication store.
//
// FindOrCreate is the single-writer entry point for the "verify document"
// check: concurrent calls with the same classification fields are
// serialized so exactly one caller observes created=true. Calls for
// distinct keys proceed concurrently.
type System interface {
	List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Document], error)

	Find(ctx context.Context, key string) (*Document, error)

	// FindOrCreate returns the document for the given classification
	// fields, creating an empty not-ready row on first sight. The boolean
	// reports whether this call created the row.
	FindOrCreate(ctx context.Context, fields map[string]string) (*Document, bool, error)

	// MarkReady idempotently merges dataMerge into the row's data, replaces
	// its taxonomy results wholesale, and sets the ready flag. If the row
	// was externally deleted it is recreated.
	MarkReady(
		ctx context.Context,
		fields map[string]string,
		dataMerge map[string]any,
		taxonomy []workunits.PhaseResult,
	) error

	// Delete removes the row for the given key. Missing rows return
	// ErrNotFound.
	Delete(ctx context.Context, key string) error
}
