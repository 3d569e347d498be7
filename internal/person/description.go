// Package person defines the structured person description produced by a
// vision provider and the primitives that compare its trait values:
// normalization, color equivalence, token matching, and clarity estimation.
package person

// Unknown is the sentinel for a trait that was not visually confirmed.
// Providers must emit it explicitly; an omitted field is a data-quality
// defect, not an implicit unknown.
const Unknown = "unknown"

// Known reports whether a normalized trait value carries evidence.
func Known(v string) bool {
	return v != "" && v != Unknown
}

// Slot identifies a garment slot in a description.
type Slot string

// Garment slots. The set is fixed; providers describe at most one item per slot.
const (
	SlotTop      Slot = "top"
	SlotJacket   Slot = "jacket"
	SlotTrousers Slot = "trousers"
	SlotShoes    Slot = "shoes"
	SlotDress    Slot = "dress"
)

// Slots lists all garment slots in evaluation order.
var Slots = []Slot{SlotTop, SlotJacket, SlotTrousers, SlotShoes, SlotDress}

// Permanence classifies how likely a clothing item is to change within the
// observation window.
type Permanence string

// Permanence levels.
const (
	PermanenceStable            Permanence = "stable"
	PermanencePossiblyRemovable Permanence = "possibly_removable"
	PermanenceRemovable         Permanence = "removable"
)

// Age bands form an ordered scale; adjacent bands are treated as partially
// compatible by the scorer.
var ageBands = []string{"child", "teenager", "young_adult", "middle_aged", "senior"}

// AgeBandIndex returns the position of an age band on the ordered scale,
// or -1 for unknown/unrecognized values.
func AgeBandIndex(v string) int {
	for i, band := range ageBands {
		if v == band {
			return i
		}
	}
	return -1
}

// Trait is a single categorical observation with the provider's confidence.
type Trait struct {
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

// Hair groups the hair-related observations.
type Hair struct {
	Color      Trait `json:"color"`
	Length     Trait `json:"length"`
	Style      Trait `json:"style"`
	FacialHair Trait `json:"facial_hair"`
}

// ClothingItem describes one garment slot.
type ClothingItem struct {
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Permanence  Permanence `json:"permanence"`
	Confidence  int        `json:"confidence"`
	Rare        bool       `json:"rare_flag"`
}

// Mark is a distinctive feature (tattoo, scar, birthmark, ...). Absent marks
// an explicit observation that no such feature is visible, which is evidence
// in its own right.
type Mark struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Rarity      int    `json:"rarity_score"`
	Confidence  int    `json:"confidence"`
	Absent      bool   `json:"absent,omitempty"`
}

// Description is the normalized, immutable record of one person in one photo.
// Every trait either holds a confirmed value or the Unknown sentinel.
type Description struct {
	Gender   Trait `json:"gender_presentation"`
	AgeBand  Trait `json:"age_band"`
	Build    Trait `json:"build"`
	Height   Trait `json:"height_impression"`
	SkinTone Trait `json:"skin_tone"`

	Hair     Hair                  `json:"hair"`
	Clothing map[Slot]ClothingItem `json:"clothing"`
	Marks    []Mark                `json:"distinctive_marks"`

	VisibleConfidence   int `json:"visible_confidence"`
	LightingUncertainty int `json:"lighting_uncertainty"`
	Distinctiveness     int `json:"distinctiveness_score"`
	ImageClarity        int `json:"image_clarity"`

	NaturalSummary string `json:"natural_summary"`
}

// Garment returns the item for a slot, or a fully-unknown item when the slot
// was never described.
func (d *Description) Garment(slot Slot) ClothingItem {
	if item, ok := d.Clothing[slot]; ok {
		return item
	}
	return ClothingItem{Description: Unknown, Color: Unknown}
}
