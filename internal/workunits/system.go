package workunits

import (
	"context"

	"github.com/crowdocs/crowdocs/pkg/pagination"
)

// System defines the public contract for work unit data access.
type System interface {
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[WorkUnit], error)

	Find(ctx context.Context, id int64) (*WorkUnit, error)

	// ListByPhase returns up to limit active units in the given phase,
	// oldest first. Done and flagged units are excluded.
	ListByPhase(ctx context.Context, phase Phase, limit int) ([]WorkUnit, error)

	// ListInFlight returns up to limit active units that have at least one
	// in-progress crowd-work entry, regardless of phase.
	ListInFlight(ctx context.Context, limit int) ([]WorkUnit, error)

	Create(ctx context.Context, unit *WorkUnit) (*WorkUnit, error)

	// Save persists the unit if its version matches the stored row, then
	// increments the in-memory version. A mismatch returns
	// repository.ErrStaleVersion and leaves the row untouched.
	Save(ctx context.Context, unit *WorkUnit) error

	// Flag excludes a unit from all further processing.
	Flag(ctx context.Context, id int64, reason string) error
}
