package reid

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// FatalKind names a category of disqualifying contradiction.
type FatalKind string

// Fatal mismatch kinds, in detection order.
const (
	FatalLowerGarment FatalKind = "lower_garment"
	FatalHairColor    FatalKind = "hair_color"
	FatalGender       FatalKind = "gender"
	FatalAgeBand      FatalKind = "age_band"
	FatalMarkAbsence  FatalKind = "mark_absence"
)

// FatalMismatch is a hard veto: the contradiction it records cannot
// plausibly occur between two photos of the same person taken within the
// observation window, so it excludes the candidate regardless of any
// accumulated positive evidence.
type FatalMismatch struct {
	Kind   FatalKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (f *FatalMismatch) String() string {
	return fmt.Sprintf("%s (%s)", f.Kind, f.Detail)
}

type garmentFamily string

const (
	familyNone   garmentFamily = ""
	familyPants  garmentFamily = "pants"
	familySkirt  garmentFamily = "skirt"
	familyShorts garmentFamily = "shorts"
	familyDress  garmentFamily = "dress"
)

// Keyword order matters for compound phrases: "jeans shorts" must land in
// the shorts family and "dress pants" in the pants family, so the more
// specific families are probed first.
var garmentFamilyKeywords = []struct {
	family   garmentFamily
	keywords []string
}{
	{familyShorts, []string{"shorts"}},
	{familySkirt, []string{"skirt"}},
	{familyPants, []string{"pants", "jeans", "trousers", "chinos", "slacks", "leggings", "joggers", "denim", "khakis"}},
	{familyDress, []string{"dress", "gown", "frock"}},
}

func classifyLowerGarment(text string) garmentFamily {
	if !person.Known(text) {
		return familyNone
	}
	for _, entry := range garmentFamilyKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.family
			}
		}
	}
	return familyNone
}

// lowerGarment classifies what a description says about the lower body,
// preferring the trousers slot and falling back to the dress slot. It
// returns the family together with the slot confidence that produced it.
func lowerGarment(d *person.Description) (garmentFamily, int) {
	for _, slot := range []person.Slot{person.SlotTrousers, person.SlotDress} {
		item := d.Garment(slot)
		if fam := classifyLowerGarment(item.Description); fam != familyNone {
			return fam, item.Confidence
		}
	}
	return familyNone, 0
}

// Only trousers against a skirt, shorts, or dress counts as a family
// contradiction. Skirt-vs-shorts and similar pairs stay non-fatal; the
// evidence scorer handles them as ordinary clothing disagreement.
func lowerGarmentConflict(a, b garmentFamily) bool {
	if a == familyNone || b == familyNone || a == b {
		return false
	}
	return a == familyPants || b == familyPants
}

// confidentPair reports whether two observations are jointly confident
// enough to support a veto. Low-confidence disagreements never veto.
func (e *Engine) confidentPair(confA, confB int) bool {
	return float64(confA)/100*float64(confB)/100 > e.cfg.FatalConfidenceProduct
}

// DetectFatal checks the two descriptions for contradictions that exclude a
// candidate outright. Conditions are evaluated in a fixed order and the
// first hit wins; nil means no fatal contradiction was found.
func (e *Engine) DetectFatal(newDesc, canonical *person.Description) *FatalMismatch {
	if newDesc == nil || canonical == nil {
		return nil
	}

	newFam, newConf := lowerGarment(newDesc)
	canFam, canConf := lowerGarment(canonical)
	if lowerGarmentConflict(newFam, canFam) && e.confidentPair(newConf, canConf) {
		return &FatalMismatch{
			Kind:   FatalLowerGarment,
			Detail: fmt.Sprintf("%s vs %s", newFam, canFam),
		}
	}

	nc, cc := newDesc.Hair.Color, canonical.Hair.Color
	if person.Known(nc.Value) && person.Known(cc.Value) &&
		person.Clarity(newDesc) >= e.cfg.HairVetoClarityMin &&
		person.Clarity(canonical) >= e.cfg.HairVetoClarityMin &&
		!person.ColorsEquivalent(nc.Value, cc.Value, newDesc.LightingUncertainty) &&
		e.confidentPair(nc.Confidence, cc.Confidence) {
		return &FatalMismatch{
			Kind:   FatalHairColor,
			Detail: fmt.Sprintf("%s vs %s", nc.Value, cc.Value),
		}
	}

	ng, cg := newDesc.Gender, canonical.Gender
	if person.Known(ng.Value) && person.Known(cg.Value) &&
		ng.Value != cg.Value &&
		e.confidentPair(ng.Confidence, cg.Confidence) {
		return &FatalMismatch{
			Kind:   FatalGender,
			Detail: fmt.Sprintf("%s vs %s", ng.Value, cg.Value),
		}
	}

	na, ca := newDesc.AgeBand, canonical.AgeBand
	if person.Known(na.Value) && person.Known(ca.Value) && na.Value != ca.Value {
		ni, ci := person.AgeBandIndex(na.Value), person.AgeBandIndex(ca.Value)
		if ni >= 0 && ci >= 0 && !adjacent(ni, ci) &&
			e.confidentPair(na.Confidence, ca.Confidence) {
			return &FatalMismatch{
				Kind:   FatalAgeBand,
				Detail: fmt.Sprintf("%s vs %s", na.Value, ca.Value),
			}
		}
	}

	if fm := e.markAbsenceConflict(newDesc, canonical); fm != nil {
		return fm
	}
	return e.markAbsenceConflict(canonical, newDesc)
}

// markAbsenceConflict looks for a near-permanent mark (tattoo or scar)
// confidently present on one side and confidently reported absent on the
// other.
func (e *Engine) markAbsenceConflict(present, absent *person.Description) *FatalMismatch {
	for _, pm := range present.Marks {
		if pm.Absent || !person.Known(pm.Type) || !permanentMarkType(pm.Type) {
			continue
		}
		for _, am := range absent.Marks {
			if !am.Absent || am.Type != pm.Type {
				continue
			}
			if e.confidentPair(pm.Confidence, am.Confidence) {
				return &FatalMismatch{
					Kind:   FatalMarkAbsence,
					Detail: fmt.Sprintf("%s present vs explicitly absent", pm.Type),
				}
			}
		}
	}
	return nil
}

func permanentMarkType(t string) bool {
	return t == "tattoo" || t == "scar"
}
