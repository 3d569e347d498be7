package reid

import (
	"math"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// Evidence domain keys, used in breakdowns and explanations.
const (
	DomainClothing = "clothing"
	DomainMarks    = "marks"
	DomainPhysical = "physical"
	DomainHair     = "hair"
)

// DomainScore is the pro/contra contribution of one evidence domain, with
// human-readable notes on what drove it.
type DomainScore struct {
	Pro    float64  `json:"pro"`
	Contra float64  `json:"contra"`
	Notes  []string `json:"notes,omitempty"`
}

// Evidence is the raw, unbounded accumulator output of scoring one candidate.
type Evidence struct {
	Pro     float64                `json:"pro"`
	Contra  float64                `json:"contra"`
	Domains map[string]DomainScore `json:"domains"`
}

// Score computes the raw pro/contra evidence between a new description and a
// group's canonical description. Contributions accumulate only where both
// sides carry confirmed values; every contribution is scaled by the effective
// confidence of the two observations and by the new photo's visibility
// factor. The result is deterministic and free of NaN/Inf.
func (e *Engine) Score(newDesc, canonical *person.Description) Evidence {
	ev := Evidence{Domains: make(map[string]DomainScore, 4)}
	if newDesc == nil || canonical == nil {
		return ev
	}

	vis := visibilityFactor(newDesc.VisibleConfidence)

	ev.Domains[DomainClothing] = e.scoreClothing(newDesc, canonical, vis)
	ev.Domains[DomainMarks] = e.scoreMarks(newDesc, canonical, vis)
	ev.Domains[DomainPhysical] = e.scorePhysical(newDesc, canonical, vis)
	ev.Domains[DomainHair] = e.scoreHair(newDesc, canonical, vis)

	for _, ds := range ev.Domains {
		ev.Pro += sanitize(ds.Pro)
		ev.Contra += sanitize(ds.Contra)
	}
	return ev
}

// visibilityFactor dampens every contribution for a low-visibility new photo
// but never below 0.3, so imperfect photos keep some evidentiary weight.
func visibilityFactor(visibleConfidence int) float64 {
	f := float64(visibleConfidence) / 100
	if f < 0.3 {
		return 0.3
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

// effectiveConfidence combines the confidences of two compared observations
// (product of both, normalized to [0,1]) and applies the visibility factor.
// Degenerate values collapse to zero contribution.
func effectiveConfidence(confA, confB int, vis float64) float64 {
	p := float64(confA) / 100 * float64(confB) / 100 * vis
	p = sanitize(p)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// sanitize maps NaN and infinities to zero so arithmetic degeneracy never
// propagates into a returned score.
func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
