package reid

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// Domains appear in explanations strongest-signal first.
var explanationDomains = []string{DomainMarks, DomainClothing, DomainPhysical, DomainHair}

const maxExplanationNotes = 6

// evaluation carries one candidate through the decision pipeline.
type evaluation struct {
	cand        Candidate
	fatal       *FatalMismatch
	evidence    Evidence
	normPro     float64
	normContra  float64
	probability int
}

// Decide evaluates a new description against every candidate group and
// selects at most one best match. The function is pure: identical inputs
// produce identical results and nothing is retained between calls.
func (e *Engine) Decide(newDesc *person.Description, candidates []Candidate) Result {
	if newDesc == nil {
		return Result{Explanation: "no usable description"}
	}
	if len(candidates) == 0 {
		return Result{}
	}

	newClarity := person.Clarity(newDesc)

	evals := make([]evaluation, len(candidates))
	for i, cand := range candidates {
		ev := evaluation{cand: cand}
		ev.fatal = e.DetectFatal(newDesc, cand.Canonical)
		if ev.fatal != nil {
			// A veto is unbounded contra evidence; 100 is its image on the
			// normalized scale.
			ev.normContra = 100
		} else {
			ev.evidence = e.Score(newDesc, cand.Canonical)
			ev.normPro = normalize(ev.evidence.Pro, e.cfg.ProSoftCap)
			ev.normContra = normalize(ev.evidence.Contra, e.cfg.ContraSoftCap)
			ev.probability = probability(ev.normPro, ev.normContra)
		}
		evals[i] = ev
	}

	var survivors []*evaluation
	for i := range evals {
		ev := &evals[i]
		if ev.fatal == nil && ev.normPro >= e.cfg.MinNormPro && ev.normContra <= e.cfg.MaxNormContra {
			survivors = append(survivors, ev)
		}
	}

	var winner *evaluation
	fallback := false

	if len(survivors) > 0 {
		winner = e.pickWinner(survivors)
	} else if best := bestOpenByRawPro(evals); best != nil && e.overrideAdmits(best, newClarity) {
		winner = best
		fallback = true
	}

	if winner == nil {
		return Result{
			Explanation: e.noMatchExplanation(evals),
			Shortlist:   e.shortlist(evals, nil),
		}
	}

	expl := fmt.Sprintf("matched group %s with probability %d%% - reasons: %s",
		winner.cand.GroupID, winner.probability, summarizeEvidence(winner.evidence))
	if fallback {
		expl += fmt.Sprintf("; clarity override applied (new %d vs canonical %d)",
			newClarity, e.canonicalClarity(winner.cand))
	}

	return Result{
		BestGroupID:     winner.cand.GroupID,
		Probability:     winner.probability,
		Explanation:     expl,
		Shortlist:       e.shortlist(evals, winner),
		FallbackApplied: fallback,
	}
}

// pickWinner ranks survivors and resolves near-ties. Candidates within
// TieBreakDelta probability points of the leader are re-compared preferring
// lower contra evidence, then larger groups.
func (e *Engine) pickWinner(survivors []*evaluation) *evaluation {
	sort.SliceStable(survivors, func(i, j int) bool {
		return rankBetter(survivors[i], survivors[j])
	})

	top := survivors[0]
	winner := top
	for _, s := range survivors[1:] {
		if float64(top.probability-s.probability) > e.cfg.TieBreakDelta {
			break
		}
		if s.normContra < winner.normContra ||
			(s.normContra == winner.normContra && s.cand.MemberCount > winner.cand.MemberCount) {
			winner = s
		}
	}
	return winner
}

// rankBetter orders by probability, then normalized pro, then normalized
// contra ascending, then member count descending.
func rankBetter(a, b *evaluation) bool {
	if a.probability != b.probability {
		return a.probability > b.probability
	}
	if a.normPro != b.normPro {
		return a.normPro > b.normPro
	}
	if a.normContra != b.normContra {
		return a.normContra < b.normContra
	}
	return a.cand.MemberCount > b.cand.MemberCount
}

// bestOpenByRawPro returns the non-vetoed candidate with the highest raw pro
// score, or nil when every candidate was vetoed.
func bestOpenByRawPro(evals []evaluation) *evaluation {
	var best *evaluation
	for i := range evals {
		ev := &evals[i]
		if ev.fatal != nil {
			continue
		}
		if best == nil || ev.evidence.Pro > best.evidence.Pro {
			best = ev
		}
	}
	return best
}

// overrideAdmits decides the clarity fallback: a sharper, more complete new
// photo may out-resolve a blurrier historical canonical, so a candidate that
// narrowly misses the survivor window is admitted when the new description's
// clarity beats the canonical's by the configured margin.
func (e *Engine) overrideAdmits(ev *evaluation, newClarity int) bool {
	return newClarity >= e.canonicalClarity(ev.cand)+e.cfg.OverrideClarityMargin &&
		ev.normPro >= e.cfg.MinNormPro-e.cfg.OverrideProSlack &&
		ev.normContra <= e.cfg.MaxNormContra+e.cfg.OverrideContraSlack
}

// canonicalClarity prefers the caller-supplied stored clarity and recomputes
// it from the description when the caller did not provide one.
func (e *Engine) canonicalClarity(cand Candidate) int {
	if cand.CanonicalClarity > 0 {
		return cand.CanonicalClarity
	}
	return person.Clarity(cand.Canonical)
}

// noMatchExplanation names the strongest near-miss and why it failed.
func (e *Engine) noMatchExplanation(evals []evaluation) string {
	var bestOpen, firstVetoed *evaluation
	for i := range evals {
		ev := &evals[i]
		if ev.fatal != nil {
			if firstVetoed == nil {
				firstVetoed = ev
			}
			continue
		}
		if bestOpen == nil || rankBetter(ev, bestOpen) {
			bestOpen = ev
		}
	}

	switch {
	case bestOpen != nil:
		return fmt.Sprintf(
			"no group qualified - closest was group %s with pro %.0f and contra %.0f (need pro >= %.0f and contra <= %.0f)",
			bestOpen.cand.GroupID, bestOpen.normPro, bestOpen.normContra,
			e.cfg.MinNormPro, e.cfg.MaxNormContra)
	case firstVetoed != nil:
		return fmt.Sprintf("no group qualified - candidate %s vetoed on %s",
			firstVetoed.cand.GroupID, firstVetoed.fatal)
	default:
		return "no group qualified"
	}
}

// shortlist returns the ranked near-miss candidates, excluding the winner,
// bounded by ShortlistSize. Vetoed candidates sort last and carry the veto
// reason in their note.
func (e *Engine) shortlist(evals []evaluation, winner *evaluation) []ShortlistEntry {
	ranked := make([]*evaluation, 0, len(evals))
	for i := range evals {
		if &evals[i] == winner {
			continue
		}
		ranked = append(ranked, &evals[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.fatal == nil) != (b.fatal == nil) {
			return a.fatal == nil
		}
		return rankBetter(a, b)
	})
	if len(ranked) > e.cfg.ShortlistSize {
		ranked = ranked[:e.cfg.ShortlistSize]
	}

	entries := make([]ShortlistEntry, 0, len(ranked))
	for _, ev := range ranked {
		entry := ShortlistEntry{
			GroupID:     ev.cand.GroupID,
			Probability: ev.probability,
			NormPro:     round1(ev.normPro),
			NormContra:  round1(ev.normContra),
			MemberCount: ev.cand.MemberCount,
		}
		if ev.fatal != nil {
			entry.Vetoed = true
			entry.Note = ev.fatal.String()
		}
		entries = append(entries, entry)
	}
	return entries
}

// summarizeEvidence collects the per-domain notes strongest-signal first.
func summarizeEvidence(ev Evidence) string {
	var notes []string
	for _, domain := range explanationDomains {
		ds, ok := ev.Domains[domain]
		if !ok {
			continue
		}
		notes = append(notes, ds.Notes...)
	}
	if len(notes) == 0 {
		return "weak overall evidence"
	}
	if len(notes) > maxExplanationNotes {
		notes = notes[:maxExplanationNotes]
	}
	return strings.Join(notes, ", ")
}

// normalize compresses an unbounded accumulator onto 0-100 with diminishing
// returns; strong sums approach the ceiling without reaching it.
func normalize(raw, softCap float64) float64 {
	raw = sanitize(raw)
	if raw <= 0 || softCap <= 0 {
		return 0
	}
	return 100 * raw / (raw + softCap)
}

// probability blends normalized pro and contra into a single 0-100 figure.
func probability(normPro, normContra float64) int {
	p := math.Round(sanitize(normPro * (1 - normContra/100)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
