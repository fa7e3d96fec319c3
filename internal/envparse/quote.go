package envparse

import "strings"

// Unescape resolves the escape sequences of a raw value. The replacements
// run one after the other over the whole string: \" becomes ", then \'
// becomes ', then \\ becomes \. The order must not change: `\\"` unescapes
// to `\"` because the quote escape is resolved before backslashes collapse.
func Unescape(raw string) string {
	v := strings.ReplaceAll(raw, `\"`, `"`)
	v = strings.ReplaceAll(v, `\'`, `'`)
	return strings.ReplaceAll(v, `\\`, `\`)
}

// Quote renders value as a token that Parse reads back as value. The
// double-quoted form is tried first, then the single-quoted and bare forms.
// ok is false when none of them round-trips, which can only happen for
// values containing backslashes; the double-quoted form is returned anyway.
func Quote(value string) (token string, ok bool) {
	candidates := []string{
		`"` + strings.ReplaceAll(value, `"`, `\"`) + `"`,
		`'` + strings.ReplaceAll(value, `'`, `\'`) + `'`,
		value,
	}
	for _, c := range candidates {
		if roundTrips(c, value) {
			return c, true
		}
	}
	return candidates[0], false
}

func roundTrips(token, value string) bool {
	entries, err := Parse("K=" + token)
	return err == nil && len(entries) == 1 && entries[0].Value == value
}
