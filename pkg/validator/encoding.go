package validator

import (
	"encoding/base64"
	"encoding/hex"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Obfuscation scanning: each encoding is decoded first, then the decoded
// text is compared against the dangerous-literal set. Findings here are
// EncodingAttempt, distinct from CommandInjection findings, and a
// successfully decoded dangerous payload is critical-class.

var (
	urlEscapeRe   = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	htmlEntityRe  = regexp.MustCompile(`&(#x?[0-9A-Fa-f]+|[a-zA-Z]+);`)
	hexEscapeRe   = regexp.MustCompile(`(\\x[0-9A-Fa-f]{2}){2,}`)
	base64TokenRe = regexp.MustCompile(`[A-Za-z0-9+/]{8,}={0,2}`)
)

func scanEncodings(text string) []Finding {
	var findings []Finding

	if urlEscapeRe.MatchString(text) {
		if decoded, err := url.QueryUnescape(text); err == nil {
			if lit, ok := containsDangerousLiteral(decoded); ok {
				findings = append(findings, Finding{
					Kind:     KindEncodingAttempt,
					Severity: SeverityCritical,
					Message:  "URL-encoded payload decodes to a destructive operation",
					Pattern:  "url",
					Context:  lit,
				})
			}
		}
	}

	if htmlEntityRe.MatchString(text) {
		decoded := html.UnescapeString(text)
		if decoded != text {
			if lit, ok := containsDangerousLiteral(decoded); ok {
				findings = append(findings, Finding{
					Kind:     KindEncodingAttempt,
					Severity: SeverityCritical,
					Message:  "HTML-entity-encoded payload decodes to a destructive operation",
					Pattern:  "html_entity",
					Context:  lit,
				})
			}
		}
	}

	for _, m := range hexEscapeRe.FindAllString(text, -1) {
		raw := strings.ReplaceAll(m, `\x`, "")
		if decoded, err := hex.DecodeString(raw); err == nil {
			if lit, ok := containsDangerousLiteral(string(decoded)); ok {
				findings = append(findings, Finding{
					Kind:     KindEncodingAttempt,
					Severity: SeverityCritical,
					Message:  "hex-escaped payload decodes to a destructive operation",
					Pattern:  "hex",
					Context:  lit,
				})
				break
			}
		}
	}

	for _, token := range base64TokenRe.FindAllString(text, -1) {
		decoded, err := base64.StdEncoding.DecodeString(token)
		if err != nil || !printable(decoded) {
			continue
		}
		if lit, ok := containsDangerousLiteral(string(decoded)); ok {
			findings = append(findings, Finding{
				Kind:     KindEncodingAttempt,
				Severity: SeverityCritical,
				Message:  "Base64 payload decodes to a destructive operation",
				Pattern:  "base64",
				Context:  lit,
			})
			break
		}
	}

	return findings
}

// printable reports whether decoded bytes look like text worth comparing
// against the literal set; binary blobs are skipped.
func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x09 || (c > 0x0d && c < 0x20) || c > 0x7e {
			return false
		}
	}
	return true
}
