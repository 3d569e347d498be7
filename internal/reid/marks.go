package reid

import (
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// Rare-mark evidence weights. Matching a rare identifying mark is the
// strongest single positive signal available; a confident presence-vs-absence
// disagreement is a strong negative one.
const (
	markMatchWeight   = 80.0
	markLocationBonus = 8.0
	markAbsenceWeight = 40.0
)

// scoreMarks accumulates rare distinctive-mark evidence. Each rare canonical
// mark (rarity at or above the configured floor) is searched for a new-side
// mark of the same type with overlapping description tokens; an explicit
// high-confidence absence on the other side instead counts against the match.
// The reverse direction (rare new mark vs canonical absence) is also checked
// so the penalty is symmetric.
func (e *Engine) scoreMarks(newDesc, canonical *person.Description, vis float64) DomainScore {
	var ds DomainScore

	for _, cm := range canonical.Marks {
		if cm.Absent || !person.Known(cm.Type) || cm.Rarity < e.cfg.RareMarkRarityMin {
			continue
		}
		nm, found := findMark(newDesc.Marks, cm.Type)
		if !found {
			continue
		}

		eff := effectiveConfidence(cm.Confidence, nm.Confidence, vis)
		if eff == 0 {
			continue
		}

		switch {
		case nm.Absent:
			ds.Contra += markAbsenceWeight * float64(cm.Rarity) / 100 * eff
			ds.Notes = append(ds.Notes, fmt.Sprintf("%s explicitly absent on new photo", cm.Type))
		case person.TokenSubstringMatch(cm.Description, nm.Description):
			ds.Pro += markMatchWeight * float64(cm.Rarity) / 100 * eff
			if person.TokenSubstringMatch(cm.Location, nm.Location) {
				ds.Pro += markLocationBonus * eff
			}
			ds.Notes = append(ds.Notes, fmt.Sprintf("rare %s matches", cm.Type))
		}
	}

	// Rare mark on the new side that the canonical explicitly rules out.
	for _, nm := range newDesc.Marks {
		if nm.Absent || !person.Known(nm.Type) || nm.Rarity < e.cfg.RareMarkRarityMin {
			continue
		}
		cm, found := findMark(canonical.Marks, nm.Type)
		if !found || !cm.Absent {
			continue
		}
		eff := effectiveConfidence(nm.Confidence, cm.Confidence, vis)
		if eff == 0 {
			continue
		}
		ds.Contra += markAbsenceWeight * float64(nm.Rarity) / 100 * eff
		ds.Notes = append(ds.Notes, fmt.Sprintf("%s explicitly absent on canonical", nm.Type))
	}

	return ds
}

// findMark returns the first mark of the given type.
func findMark(marks []person.Mark, markType string) (person.Mark, bool) {
	for _, m := range marks {
		if m.Type == markType {
			return m, true
		}
	}
	return person.Mark{}, false
}
