// Package crowd talks to the external crowd annotation platform. The
// engine creates one crowd unit per task, polls for its aggregated
// judgements, and cancels units the review flow invalidates.
package crowd

import (
	"context"
	"errors"
)

var (
	ErrUnitNotFound = errors.New("crowd unit not found")
	ErrJobNotFound  = errors.New("crowd job not found")
	ErrRateLimited  = errors.New("crowd rate limit exhausted")
)

// Field is one annotated value in a crowd result, with the platform's
// inter-annotator agreement score attached.
type Field struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Result is the aggregated state of a single crowd unit.
type Result struct {
	Done           bool    `json:"done"`
	JudgementCount int     `json:"judgement_count"`
	Cost           float64 `json:"cost"`
	Fields         []Field `json:"fields"`
}

// Provider is the engine's view of the crowd platform.
type Provider interface {
	// CreateUnit submits a new unit of work for the given job and
	// returns the platform's unit identifier. The source URL points the
	// annotators at the scanned document.
	CreateUnit(ctx context.Context, jobID, sourceURL string, inputs map[string]string) (string, error)

	// UnitResult fetches the current aggregated result for a unit.
	UnitResult(ctx context.Context, jobID, unitID string) (*Result, error)

	// CancelUnit withdraws a unit so no further judgements are collected.
	// Cancelling an already-finished or missing unit is not an error.
	CancelUnit(ctx context.Context, jobID, unitID string) error

	// JobPing verifies that a job exists and is accepting units.
	JobPing(ctx context.Context, jobID string) error
}
