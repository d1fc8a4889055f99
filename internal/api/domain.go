package api

import (
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/intake"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
)

// Domain holds the domain systems the admin module serves.
type Domain struct {
	Units     workunits.System
	Documents documents.System
	Intake    *intake.System
}

// NewDomain creates all domain systems from the admin runtime.
func NewDomain(runtime *Runtime, registry *workflows.Registry) *Domain {
	units := workunits.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	return &Domain{
		Units: units,
		Documents: documents.New(
			runtime.Database.Connection(),
			runtime.Logger,
			runtime.Pagination,
		),
		Intake: intake.New(units, registry, runtime.Crowd, runtime.Logger),
	}
}
