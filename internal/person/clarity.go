package person

// clarityFieldBonus is the contribution of each filled key field to the
// completeness part of the clarity score.
const clarityFieldBonus = 3

// clarityBonusCap bounds the total completeness contribution.
const clarityBonusCap = 40

// Clarity computes the composite 0-100 quality score for a description. It
// blends the provider's image_clarity self-report (weight 0.6) with a
// completeness bonus: each of the 14 key trait fields (five physical traits,
// four hair traits, five clothing slots) that holds a confirmed value adds
// clarityFieldBonus points, capped at clarityBonusCap. The score picks a
// group's canonical description (highest wins) and gates the decision
// engine's override fallback.
func Clarity(d *Description) int {
	if d == nil {
		return 0
	}

	filled := 0
	for _, value := range []string{
		d.Gender.Value,
		d.AgeBand.Value,
		d.Build.Value,
		d.Height.Value,
		d.SkinTone.Value,
		d.Hair.Color.Value,
		d.Hair.Length.Value,
		d.Hair.Style.Value,
		d.Hair.FacialHair.Value,
	} {
		if Known(value) {
			filled++
		}
	}
	for _, slot := range Slots {
		item := d.Garment(slot)
		if Known(item.Description) || Known(item.Color) {
			filled++
		}
	}

	bonus := filled * clarityFieldBonus
	if bonus > clarityBonusCap {
		bonus = clarityBonusCap
	}

	base := d.ImageClarity
	if base < 0 {
		base = 0
	}
	if base > 100 {
		base = 100
	}

	score := (base*6 + 5) / 10 // round(0.6 * imageClarity)
	score += bonus

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
