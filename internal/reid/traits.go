package reid

import (
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// Physical trait weights. The gender contra weight is deliberately
// near-fatal: a confident gender-presentation disagreement should sink a
// candidate even when the fatal detector's confidence gate was not met.
var physicalWeights = []struct {
	name   string
	pro    float64
	contra float64
}{
	{"gender", 25, 120},
	{"age_band", 20, 25},
	{"build", 15, 15},
	{"height", 10, 15},
	{"skin_tone", 15, 20},
}

// Adjacent age bands are partially compatible: estimation uncertainty at a
// band boundary earns a reduced pro and a reduced contra at the same time.
const (
	ageAdjacentProFactor    = 0.4
	ageAdjacentContraFactor = 0.2
)

// Hair evidence weights. Style has no contra because free-text styling is
// too noisy to punish; a facial-hair contradiction weighs heavily because
// facial hair does not appear or disappear within the observation window.
const (
	hairColorPro     = 15.0
	hairColorContra  = 15.0
	hairLengthPro    = 8.0
	hairLengthContra = 10.0
	hairStylePro     = 5.0
	hairFacialPro    = 8.0
	hairFacialContra = 20.0
)

// scorePhysical accumulates evidence from the five physical traits.
func (e *Engine) scorePhysical(newDesc, canonical *person.Description, vis float64) DomainScore {
	var ds DomainScore

	pairs := []struct {
		idx      int
		newTrait person.Trait
		canTrait person.Trait
	}{
		{0, newDesc.Gender, canonical.Gender},
		{1, newDesc.AgeBand, canonical.AgeBand},
		{2, newDesc.Build, canonical.Build},
		{3, newDesc.Height, canonical.Height},
		{4, newDesc.SkinTone, canonical.SkinTone},
	}

	for _, p := range pairs {
		w := physicalWeights[p.idx]
		if !person.Known(p.newTrait.Value) || !person.Known(p.canTrait.Value) {
			continue
		}
		eff := effectiveConfidence(p.newTrait.Confidence, p.canTrait.Confidence, vis)
		if eff == 0 {
			continue
		}

		if p.newTrait.Value == p.canTrait.Value {
			ds.Pro += w.pro * eff
			ds.Notes = append(ds.Notes, fmt.Sprintf("%s matches", w.name))
			continue
		}

		if w.name == "age_band" {
			ni := person.AgeBandIndex(p.newTrait.Value)
			ci := person.AgeBandIndex(p.canTrait.Value)
			if ni < 0 || ci < 0 {
				// Unrecognized band value: adjacency is undecidable, so an
				// unequal pair yields no evidence rather than a contradiction.
				continue
			}
			if adjacent(ni, ci) {
				ds.Pro += w.pro * ageAdjacentProFactor * eff
				ds.Contra += w.contra * ageAdjacentContraFactor * eff
				ds.Notes = append(ds.Notes, "age band adjacent")
				continue
			}
		}

		ds.Contra += w.contra * eff
		ds.Notes = append(ds.Notes, fmt.Sprintf("%s differs", w.name))
	}

	return ds
}

func adjacent(a, b int) bool {
	return a-b == 1 || b-a == 1
}

// scoreHair accumulates hair evidence: color through the equivalence
// resolver, length and facial hair by exact match, style by loose token
// matching with no penalty.
func (e *Engine) scoreHair(newDesc, canonical *person.Description, vis float64) DomainScore {
	var ds DomainScore
	nh, ch := newDesc.Hair, canonical.Hair

	if person.Known(nh.Color.Value) && person.Known(ch.Color.Value) {
		if eff := effectiveConfidence(nh.Color.Confidence, ch.Color.Confidence, vis); eff > 0 {
			if person.ColorsEquivalent(nh.Color.Value, ch.Color.Value, newDesc.LightingUncertainty) {
				ds.Pro += hairColorPro * eff
				ds.Notes = append(ds.Notes, "hair color matches")
			} else {
				ds.Contra += hairColorContra * eff
				ds.Notes = append(ds.Notes, "hair color differs")
			}
		}
	}

	if person.Known(nh.Length.Value) && person.Known(ch.Length.Value) {
		if eff := effectiveConfidence(nh.Length.Confidence, ch.Length.Confidence, vis); eff > 0 {
			if nh.Length.Value == ch.Length.Value {
				ds.Pro += hairLengthPro * eff
				ds.Notes = append(ds.Notes, "hair length matches")
			} else {
				ds.Contra += hairLengthContra * eff
				ds.Notes = append(ds.Notes, "hair length differs")
			}
		}
	}

	if person.Known(nh.Style.Value) && person.Known(ch.Style.Value) {
		if eff := effectiveConfidence(nh.Style.Confidence, ch.Style.Confidence, vis); eff > 0 {
			if person.TokenSubstringMatch(nh.Style.Value, ch.Style.Value) {
				ds.Pro += hairStylePro * eff
				ds.Notes = append(ds.Notes, "hair style similar")
			}
		}
	}

	if person.Known(nh.FacialHair.Value) && person.Known(ch.FacialHair.Value) {
		if eff := effectiveConfidence(nh.FacialHair.Confidence, ch.FacialHair.Confidence, vis); eff > 0 {
			if nh.FacialHair.Value == ch.FacialHair.Value {
				ds.Pro += hairFacialPro * eff
				ds.Notes = append(ds.Notes, "facial hair matches")
			} else {
				ds.Contra += hairFacialContra * eff
				ds.Notes = append(ds.Notes, "facial hair differs")
			}
		}
	}

	return ds
}
