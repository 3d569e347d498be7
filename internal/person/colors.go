package person

import "strings"

// colorGroups are the semantic equivalence classes for color tokens. Two
// colors match when any single group contains both; a token may belong to
// several groups, so equivalence is deliberately not transitive (black ~
// dark_brown and dark_brown ~ brown, but black !~ brown). The groups model
// how the same garment or hair reads under different lighting.
var colorGroups = [][]string{
	{"black", "jet_black", "very_dark"},
	{"black", "dark_brown"},
	{"navy", "dark_blue", "blue"},
	{"light_blue", "sky_blue", "pale_blue"},
	{"blue", "teal", "turquoise"},
	{"grey", "gray", "silver", "charcoal"},
	{"white", "grey", "gray", "silver"},
	{"white", "off_white", "cream", "ivory"},
	{"red", "dark_red", "maroon", "burgundy"},
	{"orange", "rust", "amber"},
	{"brown", "dark_brown", "chocolate"},
	{"brown", "tan", "light_brown"},
	{"tan", "beige", "khaki", "sand"},
	{"green", "dark_green", "olive"},
	{"green", "light_green", "mint"},
	{"yellow", "mustard", "gold"},
	{"pink", "light_pink", "rose"},
	{"purple", "violet", "lavender"},
	{"dark_blonde", "blonde", "light_brown"},
	{"blonde", "light_blonde", "platinum"},
	{"auburn", "red", "ginger"},
	{"auburn", "dark_red", "brown"},
}

// ColorsEquivalent reports whether two color tokens should be treated as the
// same color. Exact equality always matches; otherwise shared membership in
// an equivalence group matches. The lightingUncertainty parameter is accepted
// for future tightening but does not currently gate group matches; callers
// rely on that permissiveness. Unknown or empty values never match and never
// mismatch -- they are no evidence, and it is the caller's job to skip them.
func ColorsEquivalent(a, b string, lightingUncertainty int) bool {
	_ = lightingUncertainty

	if !Known(a) || !Known(b) {
		return false
	}
	if a == b {
		return true
	}
	for _, group := range colorGroups {
		if containsToken(group, a) && containsToken(group, b) {
			return true
		}
	}
	return false
}

func containsToken(group []string, v string) bool {
	for _, member := range group {
		if member == v {
			return true
		}
	}
	return false
}

// TokenSubstringMatch reports whether any whitespace-delimited token of the
// shorter text appears as a substring of the longer text. It is the loose
// comparison used for free-text garment and style descriptions, where exact
// equality is too strict. Unknown or empty values never match.
func TokenSubstringMatch(a, b string) bool {
	if !Known(a) || !Known(b) {
		return false
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	for _, token := range strings.Fields(short) {
		if strings.Contains(long, token) {
			return true
		}
	}
	return false
}
