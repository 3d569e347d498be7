package reid

import (
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// CompareResult is the verdict of a direct comparison between two
// descriptions, outside any group context.
type CompareResult struct {
	Match       bool           `json:"match"`
	Probability int            `json:"probability"`
	NormPro     float64        `json:"norm_pro"`
	NormContra  float64        `json:"norm_contra"`
	Explanation string         `json:"explanation"`
	Fatal       *FatalMismatch `json:"fatal_mismatch,omitempty"`
	Evidence    Evidence       `json:"evidence"`
}

// Compare evaluates two descriptions directly against each other. Match uses
// the same survivor window Decide applies to candidate groups, so a pairwise
// match means the new description would also join a group built from the
// other one.
func (e *Engine) Compare(a, b *person.Description) CompareResult {
	if a == nil || b == nil {
		return CompareResult{Explanation: "no usable description"}
	}

	if fatal := e.DetectFatal(a, b); fatal != nil {
		return CompareResult{
			Explanation: fmt.Sprintf("different people: fatal mismatch on %s", fatal),
			Fatal:       fatal,
		}
	}

	ev := e.Score(a, b)
	normPro := normalize(ev.Pro, e.cfg.ProSoftCap)
	normContra := normalize(ev.Contra, e.cfg.ContraSoftCap)
	p := probability(normPro, normContra)
	match := normPro >= e.cfg.MinNormPro && normContra <= e.cfg.MaxNormContra

	var expl string
	if match {
		expl = fmt.Sprintf("likely the same person with probability %d%% - reasons: %s",
			p, summarizeEvidence(ev))
	} else {
		expl = fmt.Sprintf("not enough shared evidence - probability %d%% with pro %.0f and contra %.0f (need pro >= %.0f and contra <= %.0f)",
			p, normPro, normContra, e.cfg.MinNormPro, e.cfg.MaxNormContra)
	}

	return CompareResult{
		Match:       match,
		Probability: p,
		NormPro:     round1(normPro),
		NormContra:  round1(normContra),
		Explanation: expl,
		Evidence:    ev,
	}
}
