package validator

import "strings"

// dangerousValueChars are stripped from every parameter value by
// Sanitize. Quotes are escaped instead of removed so benign text with an
// apostrophe stays recognizable.
const dangerousValueChars = ";&|`$()<>\r\n\x00"

// Sanitize returns a cleaned copy of the parameter map: dangerous
// characters stripped from values, quotes backslash-escaped, and
// parameters with disallowed names dropped entirely. It never fails on
// nil or empty input (nil maps to an empty, non-nil map) and never drops
// a key just because its value is empty. Sanitize is a fixed point on
// its own output.
func (v *Validator) Sanitize(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	if params == nil {
		return out
	}
	for name, value := range params {
		if !paramNameRe.MatchString(name) {
			continue
		}
		out[name] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	// escaped tracks the parity of the trailing backslash run in the
	// output, so dropped characters cannot desynchronize it.
	escaped := false
	for _, r := range value {
		switch {
		case strings.ContainsRune(dangerousValueChars, r):
			// dropped; output is unchanged
		case r == '\'' || r == '"':
			if !escaped {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = !escaped
		default:
			b.WriteRune(r)
			escaped = false
		}
	}
	return b.String()
}
