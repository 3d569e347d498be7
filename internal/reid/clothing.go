package reid

import (
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// Per-slot clothing evidence weights. Pro rewards a matching garment, contra
// punishes a near-total mismatch on an item both sides call stable.
var (
	clothingProWeight = map[person.Slot]float64{
		person.SlotTop:      40,
		person.SlotJacket:   35,
		person.SlotTrousers: 40,
		person.SlotShoes:    35,
		person.SlotDress:    40,
	}
	clothingContraWeight = map[person.Slot]float64{
		person.SlotTop:      30,
		person.SlotJacket:   30,
		person.SlotTrousers: 30,
		person.SlotShoes:    25,
		person.SlotDress:    30,
	}
)

// Component weights inside a slot: color dominates the free-text description.
const (
	clothingColorWeight = 0.6
	clothingDescWeight  = 0.4
)

// Contra fires only below this combined match fraction on a stable item.
const clothingContraMaxFraction = 0.2

// scoreClothing accumulates per-slot garment evidence. A slot participates
// when at least one of its components (color, description) is confirmed on
// both sides; the match fraction 0.6*color + 0.4*description is scaled by the
// item stability multiplier and the effective confidence. Summed pro is
// capped so clothing alone cannot dominate the decision.
func (e *Engine) scoreClothing(newDesc, canonical *person.Description, vis float64) DomainScore {
	var ds DomainScore

	for _, slot := range person.Slots {
		ni := newDesc.Garment(slot)
		ci := canonical.Garment(slot)

		colorComparable := person.Known(ni.Color) && person.Known(ci.Color)
		descComparable := person.Known(ni.Description) && person.Known(ci.Description)
		if !colorComparable && !descComparable {
			continue
		}

		eff := effectiveConfidence(ni.Confidence, ci.Confidence, vis)
		if eff == 0 {
			continue
		}

		fraction := 0.0
		if colorComparable && person.ColorsEquivalent(ni.Color, ci.Color, newDesc.LightingUncertainty) {
			fraction += clothingColorWeight
		}
		if descComparable && person.TokenSubstringMatch(ni.Description, ci.Description) {
			fraction += clothingDescWeight
		}

		stability := stabilityMultiplier(ni.Permanence, ci.Permanence)

		if fraction > 0 {
			ds.Pro += clothingProWeight[slot] * fraction * stability * eff
			ds.Notes = append(ds.Notes, fmt.Sprintf("%s matches", slot))
		}

		bothStable := ni.Permanence == person.PermanenceStable && ci.Permanence == person.PermanenceStable
		if bothStable && fraction <= clothingContraMaxFraction {
			ds.Contra += clothingContraWeight[slot] * eff
			ds.Notes = append(ds.Notes, fmt.Sprintf("%s differs on stable item", slot))
		}
	}

	if ds.Pro > e.cfg.ClothingProCap {
		ds.Pro = e.cfg.ClothingProCap
	}
	return ds
}

// stabilityMultiplier weights a slot by how plausibly the garment persists
// across the observation window: removable items (either side) count 0.3,
// anything short of stable/stable counts 0.6.
func stabilityMultiplier(a, b person.Permanence) float64 {
	if a == person.PermanenceRemovable || b == person.PermanenceRemovable {
		return 0.3
	}
	if a == person.PermanenceStable && b == person.PermanenceStable {
		return 1.0
	}
	return 0.6
}
