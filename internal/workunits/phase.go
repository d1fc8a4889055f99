package workunits

// Phase identifies one stage of the annotation pipeline.
type Phase string

const (
	PhaseClassification Phase = "CLASSIFICATION"
	PhaseTaxonomy       Phase = "TAXONOMY"
	PhaseExtraction     Phase = "EXTRACTION"
	PhaseReview         Phase = "REVIEW"
	PhaseEscalation     Phase = "ESCALATION"
)

// Phases lists every phase in pipeline order. REVIEW and ESCALATION are
// terminal; ESCALATION is reachable only by the escalation jump.
var Phases = []Phase{
	PhaseClassification,
	PhaseTaxonomy,
	PhaseExtraction,
	PhaseReview,
	PhaseEscalation,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseClassification, PhaseTaxonomy, PhaseExtraction, PhaseReview, PhaseEscalation:
		return true
	}
	return false
}

// Terminal reports whether p finalizes the unit once its own tasks complete.
func (p Phase) Terminal() bool {
	return p == PhaseReview || p == PhaseEscalation
}

// Escalatable reports whether a unit in p may jump to ESCALATION.
func (p Phase) Escalatable() bool {
	switch p {
	case PhaseClassification, PhaseTaxonomy, PhaseExtraction:
		return true
	}
	return false
}
