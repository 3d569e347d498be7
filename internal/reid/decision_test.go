package reid

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/kozaktomas/person-matcher/internal/person"
)

func TestDecideNoCandidates(t *testing.T) {
	eng := NewEngine(DefaultConfig())

	for _, candidates := range [][]Candidate{nil, {}} {
		result := eng.Decide(confident(), candidates)
		if result.Matched() {
			t.Errorf("Decide() matched %q, want no match", result.BestGroupID)
		}
		if result.Probability != 0 {
			t.Errorf("Decide() probability = %d, want 0", result.Probability)
		}
	}
}

func TestDecideNilDescription(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	result := eng.Decide(nil, []Candidate{{GroupID: "g-1", Canonical: confident()}})
	if result.Matched() {
		t.Errorf("Decide() matched %q, want no match for nil description", result.BestGroupID)
	}
}

func TestDecideIdenticalStrongMatch(t *testing.T) {
	newDesc := inked()
	canonical := inked()
	// accessory difference only: the canonical wears a removable jacket the
	// new photo does not show, which must not hurt the match
	canonical.Clothing[person.SlotJacket] = person.ClothingItem{
		Description: "light windbreaker",
		Color:       "grey",
		Permanence:  person.PermanenceRemovable,
		Confidence:  80,
	}

	eng := NewEngine(DefaultConfig())
	result := eng.Decide(newDesc, []Candidate{
		{GroupID: "g-park", MemberCount: 4, Canonical: canonical, CanonicalClarity: 93},
	})

	if !result.Matched() || result.BestGroupID != "g-park" {
		t.Fatalf("Decide() = %q, want g-park", result.BestGroupID)
	}
	if result.Probability < 60 {
		t.Errorf("Decide() probability = %d, want >= 60", result.Probability)
	}
	if result.FallbackApplied {
		t.Error("Decide() applied fallback on a direct survivor")
	}
	if !strings.Contains(result.Explanation, "g-park") {
		t.Errorf("Decide() explanation = %q, want it to name the group", result.Explanation)
	}
	if len(result.Shortlist) != 0 {
		t.Errorf("Decide() shortlist = %v, want empty for a single winning candidate", result.Shortlist)
	}
}

func TestDecideGenderVeto(t *testing.T) {
	newDesc := inked()
	newDesc.Gender = person.Trait{Value: "male", Confidence: 90}
	canonical := inked()
	canonical.Gender = person.Trait{Value: "female", Confidence: 85}

	eng := NewEngine(DefaultConfig())
	result := eng.Decide(newDesc, []Candidate{
		{GroupID: "g-1", MemberCount: 2, Canonical: canonical},
	})

	if result.Matched() {
		t.Fatalf("Decide() matched %q, want veto to exclude the group", result.BestGroupID)
	}
	if len(result.Shortlist) != 1 {
		t.Fatalf("Decide() shortlist length = %d, want 1", len(result.Shortlist))
	}
	entry := result.Shortlist[0]
	if !entry.Vetoed {
		t.Error("Decide() shortlist entry not marked vetoed")
	}
	if !strings.Contains(entry.Note, string(FatalGender)) {
		t.Errorf("Decide() veto note = %q, want it to name the gender check", entry.Note)
	}
	if !strings.Contains(result.Explanation, "vetoed") {
		t.Errorf("Decide() explanation = %q, want veto diagnostic", result.Explanation)
	}
}

func TestDecideLowerGarmentVeto(t *testing.T) {
	newDesc := inked() // blue jeans at high confidence
	canonical := inked()
	canonical.Clothing[person.SlotTrousers] = person.ClothingItem{
		Description: "pleated skirt",
		Color:       "black",
		Permanence:  person.PermanenceStable,
		Confidence:  95,
	}

	eng := NewEngine(DefaultConfig())
	result := eng.Decide(newDesc, []Candidate{
		{GroupID: "g-1", MemberCount: 2, Canonical: canonical},
	})

	if result.Matched() {
		t.Fatalf("Decide() matched %q, want veto to exclude the group", result.BestGroupID)
	}
	if len(result.Shortlist) != 1 || !strings.Contains(result.Shortlist[0].Note, string(FatalLowerGarment)) {
		t.Errorf("Decide() shortlist = %v, want lower_garment veto note", result.Shortlist)
	}
}

// clarityOverridePair builds a sharp new description against a sparse, blurry
// canonical whose overlap lands between the override floor and the survivor
// threshold.
func clarityOverridePair() (*person.Description, *person.Description) {
	newDesc := &person.Description{
		Gender:   person.Trait{Value: "male", Confidence: 90},
		AgeBand:  person.Trait{Value: "young_adult", Confidence: 90},
		Build:    person.Trait{Value: "slim", Confidence: 80},
		Height:   person.Trait{Value: "tall", Confidence: 80},
		SkinTone: person.Trait{Value: "light", Confidence: 85},
		Hair: person.Hair{
			Color:      person.Trait{Value: "brown", Confidence: 90},
			Length:     person.Trait{Value: "short", Confidence: 80},
			Style:      person.Trait{Value: "curly", Confidence: 70},
			FacialHair: person.Trait{Value: "clean_shaven", Confidence: 80},
		},
		Clothing: map[person.Slot]person.ClothingItem{
			person.SlotTop:      {Description: "plain t-shirt", Color: "red", Permanence: person.PermanenceStable, Confidence: 80},
			person.SlotTrousers: {Description: "blue jeans", Color: "blue", Permanence: person.PermanenceStable, Confidence: 95},
			person.SlotShoes:    {Description: "running sneakers", Color: "white", Permanence: person.PermanenceStable, Confidence: 90},
		},
		Marks:             []person.Mark{},
		VisibleConfidence: 100,
		ImageClarity:      95,
	}

	canonical := sparse()
	canonical.Gender = person.Trait{Value: "male", Confidence: 90}
	canonical.AgeBand = person.Trait{Value: "young_adult", Confidence: 90}
	canonical.Build = person.Trait{Value: "slim", Confidence: 80}
	canonical.Hair.Color = person.Trait{Value: "brown", Confidence: 90}
	canonical.Hair.Length = person.Trait{Value: "short", Confidence: 80}
	canonical.Clothing[person.SlotTop] = person.ClothingItem{
		Description: "cotton t-shirt", Color: "red", Permanence: person.PermanenceStable, Confidence: 70,
	}
	canonical.VisibleConfidence = 90
	canonical.ImageClarity = 30

	return newDesc, canonical
}

func TestDecideClarityOverride(t *testing.T) {
	newDesc, canonical := clarityOverridePair()
	eng := NewEngine(DefaultConfig())

	t.Run("sharp photo admitted against blurry canonical", func(t *testing.T) {
		result := eng.Decide(newDesc, []Candidate{
			{GroupID: "g-blur", MemberCount: 2, Canonical: canonical, CanonicalClarity: 50},
		})

		if !result.Matched() || result.BestGroupID != "g-blur" {
			t.Fatalf("Decide() = %q, want g-blur via override", result.BestGroupID)
		}
		if !result.FallbackApplied {
			t.Error("Decide() fallback_applied = false, want true")
		}
		// raw pro 85.72 normalizes to 32, below the 35 survivor floor but
		// inside the override slack
		if result.Probability != 32 {
			t.Errorf("Decide() probability = %d, want 32", result.Probability)
		}
		if !strings.Contains(result.Explanation, "clarity override") {
			t.Errorf("Decide() explanation = %q, want override note", result.Explanation)
		}
	})

	t.Run("no clarity margin means no override", func(t *testing.T) {
		result := eng.Decide(newDesc, []Candidate{
			{GroupID: "g-blur", MemberCount: 2, Canonical: canonical, CanonicalClarity: 90},
		})

		if result.Matched() {
			t.Fatalf("Decide() matched %q, want no match without clarity margin", result.BestGroupID)
		}
		if result.FallbackApplied {
			t.Error("Decide() fallback_applied = true, want false")
		}
		if !strings.Contains(result.Explanation, "no group qualified") {
			t.Errorf("Decide() explanation = %q, want threshold diagnostic", result.Explanation)
		}
	})
}

func TestDecideTieBreakPrefersLowerContra(t *testing.T) {
	newDesc := inked()

	big := inked()
	big.SkinTone = person.Trait{Value: "medium", Confidence: 95} // one stable trait against it

	clean := sparse()
	clean.Gender = person.Trait{Value: "male", Confidence: 100}
	clean.AgeBand = person.Trait{Value: "young_adult", Confidence: 100}
	clean.Build = person.Trait{Value: "slim", Confidence: 95}
	clean.Hair.Color = person.Trait{Value: "brown", Confidence: 100}
	clean.Hair.Length = person.Trait{Value: "short", Confidence: 95}
	clean.Clothing[person.SlotTop] = person.ClothingItem{Description: "plain t-shirt", Color: "red", Permanence: person.PermanenceStable, Confidence: 100}
	clean.Clothing[person.SlotTrousers] = person.ClothingItem{Description: "blue jeans", Color: "blue", Permanence: person.PermanenceStable, Confidence: 100}

	eng := NewEngine(DefaultConfig())
	result := eng.Decide(newDesc, []Candidate{
		{GroupID: "g-big", MemberCount: 3, Canonical: big},
		{GroupID: "g-clean", MemberCount: 2, Canonical: clean},
	})

	// g-big scores probability 52 with contra evidence, g-clean 47 with none;
	// inside the 6-point window the cleaner candidate wins
	if result.BestGroupID != "g-clean" {
		t.Fatalf("Decide() = %q, want g-clean by tie-break", result.BestGroupID)
	}
	if result.Probability != 47 {
		t.Errorf("Decide() probability = %d, want 47", result.Probability)
	}
	if len(result.Shortlist) != 1 || result.Shortlist[0].GroupID != "g-big" {
		t.Errorf("Decide() shortlist = %v, want g-big as the near miss", result.Shortlist)
	}
}

func TestDecideTieBreakPrefersLargerGroup(t *testing.T) {
	eng := NewEngine(DefaultConfig())
	result := eng.Decide(inked(), []Candidate{
		{GroupID: "g-two", MemberCount: 2, Canonical: inked()},
		{GroupID: "g-five", MemberCount: 5, Canonical: inked()},
	})

	if result.BestGroupID != "g-five" {
		t.Errorf("Decide() = %q, want g-five on member count", result.BestGroupID)
	}
}

func TestDecideIdempotent(t *testing.T) {
	newDesc := inked()
	candidates := []Candidate{
		{GroupID: "g-1", MemberCount: 3, Canonical: inked()},
		{GroupID: "g-2", MemberCount: 1, Canonical: confident()},
	}

	eng := NewEngine(DefaultConfig())
	first := eng.Decide(newDesc, candidates)
	second := eng.Decide(newDesc, candidates)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Decide() not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestDecideShortlistBounded(t *testing.T) {
	veto := inked()
	veto.Gender = person.Trait{Value: "female", Confidence: 95}

	candidates := []Candidate{
		{GroupID: "g-match", MemberCount: 4, Canonical: inked()},
		{GroupID: "g-a", MemberCount: 1, Canonical: confident()},
		{GroupID: "g-b", MemberCount: 2, Canonical: confident()},
		{GroupID: "g-c", MemberCount: 3, Canonical: confident()},
		{GroupID: "g-veto", MemberCount: 1, Canonical: veto},
	}

	eng := NewEngine(DefaultConfig())
	result := eng.Decide(inked(), candidates)

	if result.BestGroupID != "g-match" {
		t.Fatalf("Decide() = %q, want g-match", result.BestGroupID)
	}
	if len(result.Shortlist) != 3 {
		t.Fatalf("Decide() shortlist length = %d, want 3", len(result.Shortlist))
	}
	for _, entry := range result.Shortlist {
		if entry.GroupID == result.BestGroupID {
			t.Errorf("Decide() shortlist contains the winner %q", entry.GroupID)
		}
	}
}

func TestNormalizeTransform(t *testing.T) {
	tests := []struct {
		raw      float64
		softCap  float64
		expected float64
	}{
		{0, 180, 0},
		{-10, 180, 0},
		{180, 180, 50},
		{540, 180, 75},
		{math.NaN(), 180, 0},
		{math.Inf(1), 180, 0},
	}

	for _, tt := range tests {
		if got := normalize(tt.raw, tt.softCap); !near(got, tt.expected) {
			t.Errorf("normalize(%v, %v) = %v, want %v", tt.raw, tt.softCap, got, tt.expected)
		}
	}
}

func TestProbabilityBlend(t *testing.T) {
	tests := []struct {
		normPro    float64
		normContra float64
		expected   int
	}{
		{50, 0, 50},
		{50, 100, 0},
		{60, 50, 30},
		{0, 0, 0},
		{math.NaN(), 0, 0},
		{100, math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := probability(tt.normPro, tt.normContra); got != tt.expected {
			t.Errorf("probability(%v, %v) = %d, want %d", tt.normPro, tt.normContra, got, tt.expected)
		}
	}
}
