package person

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnusable is returned when the raw provider output is not a structured
// object at all. Callers must not persist anything derived from such input.
var ErrUnusable = errors.New("person: description not usable")

// RemoveDiacritics removes diacritical marks from a string (e.g., "marrón" -> "marron").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeToken canonicalizes a single categorical value: trimmed,
// lowercased, diacritics folded, internal whitespace and hyphens collapsed
// to underscores. Empty input becomes the Unknown sentinel.
func NormalizeToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	s = strings.ToLower(RemoveDiacritics(s))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.Join(strings.Fields(s), "_")
	if s == "" {
		return Unknown
	}
	return s
}

// NormalizeText canonicalizes free text (garment descriptions, summaries):
// trimmed, lowercased, diacritics folded, whitespace collapsed to single
// spaces. Word boundaries are kept so token matching still works.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	s = strings.ToLower(RemoveDiacritics(s))
	return strings.Join(strings.Fields(s), " ")
}

// Normalize converts raw provider output into a well-formed Description.
// It is a pure function: string fields are canonicalized, absent or invalid
// fields become the Unknown sentinel with confidence 0, list fields coerce to
// empty slices, and confidences clamp to [0,100]. A non-object root returns
// ErrUnusable instead of a partially-filled record.
func Normalize(input any) (*Description, error) {
	raw, ok := input.(map[string]any)
	if !ok || raw == nil {
		return nil, ErrUnusable
	}

	d := &Description{
		Gender:   normTrait(raw["gender_presentation"]),
		AgeBand:  normTrait(raw["age_band"]),
		Build:    normTrait(raw["build"]),
		Height:   normTrait(raw["height_impression"]),
		SkinTone: normTrait(raw["skin_tone"]),
		Clothing: normClothing(raw["clothing"]),
		Marks:    normMarks(raw["distinctive_marks"]),

		VisibleConfidence:   normScalar(raw["visible_confidence"]),
		LightingUncertainty: normScalar(raw["lighting_uncertainty"]),
		Distinctiveness:     normScalar(raw["distinctiveness_score"]),
		ImageClarity:        normScalar(raw["image_clarity"]),
	}

	if hair, ok := raw["hair"].(map[string]any); ok {
		d.Hair = Hair{
			Color:      normTrait(hair["color"]),
			Length:     normTrait(hair["length"]),
			Style:      normTrait(hair["style"]),
			FacialHair: normTrait(hair["facial_hair"]),
		}
	} else {
		d.Hair = Hair{
			Color:      unknownTrait(),
			Length:     unknownTrait(),
			Style:      unknownTrait(),
			FacialHair: unknownTrait(),
		}
	}

	if summary, ok := raw["natural_summary"].(string); ok && strings.TrimSpace(summary) != "" {
		d.NaturalSummary = strings.TrimSpace(summary)
	}

	return d, nil
}

func unknownTrait() Trait {
	return Trait{Value: Unknown}
}

// normTrait accepts either a {value, confidence} object or a bare string.
// Anything else yields the Unknown sentinel with confidence 0.
func normTrait(v any) Trait {
	switch t := v.(type) {
	case map[string]any:
		value := Unknown
		if s, ok := t["value"].(string); ok {
			value = NormalizeToken(s)
		}
		return Trait{Value: value, Confidence: normScalar(t["confidence"])}
	case string:
		return Trait{Value: NormalizeToken(t), Confidence: 0}
	default:
		return unknownTrait()
	}
}

func normClothing(v any) map[Slot]ClothingItem {
	clothing := make(map[Slot]ClothingItem, len(Slots))
	items, ok := v.(map[string]any)
	if !ok {
		items = nil
	}
	for _, slot := range Slots {
		raw, ok := items[string(slot)].(map[string]any)
		if !ok {
			clothing[slot] = ClothingItem{Description: Unknown, Color: Unknown}
			continue
		}
		item := ClothingItem{
			Description: Unknown,
			Color:       Unknown,
			Confidence:  normScalar(raw["confidence"]),
		}
		if s, ok := raw["description"].(string); ok {
			item.Description = NormalizeText(s)
		}
		if s, ok := raw["color"].(string); ok {
			item.Color = NormalizeToken(s)
		}
		if s, ok := raw["permanence"].(string); ok {
			item.Permanence = normPermanence(s)
		}
		if b, ok := raw["rare_flag"].(bool); ok {
			item.Rare = b
		}
		clothing[slot] = item
	}
	return clothing
}

func normPermanence(s string) Permanence {
	switch Permanence(NormalizeToken(s)) {
	case PermanenceStable:
		return PermanenceStable
	case PermanencePossiblyRemovable:
		return PermanencePossiblyRemovable
	case PermanenceRemovable:
		return PermanenceRemovable
	default:
		return ""
	}
}

// normMarks coerces the marks field to a well-formed slice, dropping entries
// that are not objects or that carry no usable type.
func normMarks(v any) []Mark {
	items, ok := v.([]any)
	if !ok {
		return []Mark{}
	}
	marks := make([]Mark, 0, len(items))
	for _, entry := range items {
		raw, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		mark := Mark{
			Type:        Unknown,
			Description: Unknown,
			Location:    Unknown,
			Rarity:      normScalar(raw["rarity_score"]),
			Confidence:  normScalar(raw["confidence"]),
		}
		if s, ok := raw["type"].(string); ok {
			mark.Type = NormalizeToken(s)
		}
		if !Known(mark.Type) {
			continue
		}
		if s, ok := raw["description"].(string); ok {
			mark.Description = NormalizeText(s)
		}
		if s, ok := raw["location"].(string); ok {
			mark.Location = NormalizeText(s)
		}
		if b, ok := raw["absent"].(bool); ok {
			mark.Absent = b
		}
		marks = append(marks, mark)
	}
	return marks
}

// normScalar coerces a JSON number (or numeric string) to an int clamped to
// [0,100]. Anything unusable is 0.
func normScalar(v any) int {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case string:
		trimmed := strings.TrimSpace(t)
		for _, r := range trimmed {
			if r < '0' || r > '9' {
				return 0
			}
		}
		for _, r := range trimmed {
			n = n*10 + int(r-'0')
			if n > 100 {
				return 100
			}
		}
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
