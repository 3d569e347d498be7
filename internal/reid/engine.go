// Package reid implements the person re-identification scoring engine: a
// pure decision procedure that weighs a new person description against the
// canonical descriptions of previously observed person groups and picks at
// most one matching group.
//
// The engine accumulates unbounded pro and contra evidence per candidate
// (clothing, rare marks, physical traits, hair), gates candidates through
// hard-veto fatal mismatch checks, compresses the accumulators onto a
// normalized 0-100 scale, and resolves ties and near-misses with a
// clarity-based override. It holds no state and performs no I/O; candidate
// groups come from the caller and the result drives the caller's persistence
// decision.
package reid

import (
	"github.com/kozaktomas/person-matcher/internal/person"
)

// Config holds the engine tunables. The per-trait evidence weights are fixed
// package constants; Config only carries the knobs that deployments may
// legitimately retune.
type Config struct {
	// ProSoftCap and ContraSoftCap drive the diminishing-returns transform
	// 100*raw/(raw+cap) that compresses accumulator sums onto 0-100.
	ProSoftCap    float64
	ContraSoftCap float64

	// MinNormPro and MaxNormContra define the survivor window on the
	// normalized scale.
	MinNormPro    float64
	MaxNormContra float64

	// ClothingProCap bounds the summed clothing pro contribution so clothing
	// alone can never clear the survivor threshold.
	ClothingProCap float64

	// FatalConfidenceProduct is the minimum product of the two conflicting
	// observation confidences (each normalized to [0,1]) for a fatal
	// mismatch to fire. Low-confidence disagreements never veto.
	FatalConfidenceProduct float64

	// HairVetoClarityMin gates the hair-color fatal check: both descriptions
	// must reach this clarity before a hair-color read is trusted to veto.
	HairVetoClarityMin int

	// RareMarkRarityMin is the rarity floor for a mark to participate in the
	// marks evidence domain.
	RareMarkRarityMin int

	// Clarity override: a new description whose clarity exceeds the
	// candidate's canonical clarity by OverrideClarityMargin may be admitted
	// despite missing the survivor window by the given slacks.
	OverrideClarityMargin int
	OverrideProSlack      float64
	OverrideContraSlack   float64

	// TieBreakDelta is the probability distance within which candidates are
	// considered tied and re-ranked by contra evidence and member count.
	TieBreakDelta float64

	// ShortlistSize bounds the near-miss list returned for observability.
	ShortlistSize int
}

// DefaultConfig returns the tuned production defaults.
func DefaultConfig() Config {
	return Config{
		ProSoftCap:             180,
		ContraSoftCap:          120,
		MinNormPro:             35,
		MaxNormContra:          40,
		ClothingProCap:         90,
		FatalConfidenceProduct: 0.49,
		HairVetoClarityMin:     60,
		RareMarkRarityMin:      60,
		OverrideClarityMargin:  5,
		OverrideProSlack:       5,
		OverrideContraSlack:    5,
		TieBreakDelta:          6,
		ShortlistSize:          3,
	}
}

// Engine evaluates new descriptions against candidate person groups. It is
// safe for concurrent use; all methods are pure functions of their inputs.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given configuration. Zero-valued
// fields fall back to the defaults so partial configs stay usable.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.ProSoftCap <= 0 {
		cfg.ProSoftCap = def.ProSoftCap
	}
	if cfg.ContraSoftCap <= 0 {
		cfg.ContraSoftCap = def.ContraSoftCap
	}
	if cfg.MinNormPro <= 0 {
		cfg.MinNormPro = def.MinNormPro
	}
	if cfg.MaxNormContra <= 0 {
		cfg.MaxNormContra = def.MaxNormContra
	}
	if cfg.ClothingProCap <= 0 {
		cfg.ClothingProCap = def.ClothingProCap
	}
	if cfg.FatalConfidenceProduct <= 0 {
		cfg.FatalConfidenceProduct = def.FatalConfidenceProduct
	}
	if cfg.HairVetoClarityMin <= 0 {
		cfg.HairVetoClarityMin = def.HairVetoClarityMin
	}
	if cfg.RareMarkRarityMin <= 0 {
		cfg.RareMarkRarityMin = def.RareMarkRarityMin
	}
	if cfg.OverrideClarityMargin <= 0 {
		cfg.OverrideClarityMargin = def.OverrideClarityMargin
	}
	if cfg.OverrideProSlack <= 0 {
		cfg.OverrideProSlack = def.OverrideProSlack
	}
	if cfg.OverrideContraSlack <= 0 {
		cfg.OverrideContraSlack = def.OverrideContraSlack
	}
	if cfg.TieBreakDelta <= 0 {
		cfg.TieBreakDelta = def.TieBreakDelta
	}
	if cfg.ShortlistSize <= 0 {
		cfg.ShortlistSize = def.ShortlistSize
	}
	return &Engine{cfg: cfg}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Candidate is the group summary the engine evaluates against: the group
// identifier, its current member count, and its canonical description with
// that description's clarity score.
type Candidate struct {
	GroupID          string
	MemberCount      int
	Canonical        *person.Description
	CanonicalClarity int
}

// ShortlistEntry summarizes one evaluated candidate for observability.
type ShortlistEntry struct {
	GroupID     string  `json:"group_id"`
	Probability int     `json:"probability"`
	NormPro     float64 `json:"norm_pro"`
	NormContra  float64 `json:"norm_contra"`
	MemberCount int     `json:"member_count"`
	Vetoed      bool    `json:"vetoed,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// Result is the outcome of one grouping decision. An empty BestGroupID means
// no existing group qualified and the caller should create a new one.
type Result struct {
	BestGroupID     string           `json:"best_group_id,omitempty"`
	Probability     int              `json:"best_group_probability"`
	Explanation     string           `json:"explanation"`
	Shortlist       []ShortlistEntry `json:"shortlist,omitempty"`
	FallbackApplied bool             `json:"fallback_applied,omitempty"`
}

// Matched reports whether the decision selected an existing group.
func (r Result) Matched() bool {
	return r.BestGroupID != ""
}
