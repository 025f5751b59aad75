package validator

import (
	"regexp"
	"strings"
)

// injectionRule is one tagged pattern family. Families are evaluated in
// a fixed order and every matching family contributes a finding; a
// Critical aggregate only arises from the critical-class families
// (destructive literals, fork bomb, decoded dangerous payloads).
type injectionRule struct {
	family   string
	re       *regexp.Regexp
	severity Severity
	message  string
	class    ThreatClass
}

// dangerousLiterals are the known-destructive fragments compared against
// both raw command text and decoded obfuscation payloads. Lower case.
var dangerousLiterals = []string{
	"rm -rf",
	"rm -fr",
	"mkfs",
	"dd if=",
	"format c:",
	"del /f /s /q",
	":(){",
	"> /dev/sda",
}

var injectionRules = []injectionRule{
	{
		family:   "fork_bomb",
		re:       regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;:`),
		severity: SeverityCritical,
		message:  "fork bomb idiom",
	},
	{
		family:   "destructive_literal",
		re:       regexp.MustCompile(`(?i)(rm\s+-[a-z]*r[a-z]*f|rm\s+-[a-z]*f[a-z]*r|mkfs(\.[a-z0-9]+)?\s|dd\s+if=|format\s+[a-z]:|del\s+/[fsq]\s)`),
		severity: SeverityCritical,
		message:  "known destructive operation literal",
	},
	{
		family:   "pipe_to_interpreter",
		re:       regexp.MustCompile(`(?i)\|\s*(ba|z|da)?sh\b|\|\s*powershell\b|\|\s*pwsh\b|\|\s*cmd\b`),
		severity: SeverityHigh,
		message:  "output piped into an interpreter",
	},
	{
		family:   "command_substitution",
		re:       regexp.MustCompile("`[^`]*`" + `|\$\([^)]*\)`),
		severity: SeverityHigh,
		message:  "command or subshell substitution",
	},
	{
		family:   "shell_separator",
		re:       regexp.MustCompile(`;|&&|\|\|`),
		severity: SeverityHigh,
		message:  "shell metacharacter used as command separator",
	},
	{
		family:   "sensitive_redirection",
		re:       regexp.MustCompile(`(?i)>+\s*/(etc|dev|sys|proc|boot)/|<\s*/etc/(passwd|shadow)`),
		severity: SeverityHigh,
		message:  "redirection to or from a sensitive target",
	},
	{
		family:   "privilege_escalation",
		re:       regexp.MustCompile(`(?i)\bsudo\s|\bsu\s+-\b|\brunas\b|\bdoas\s`),
		severity: SeverityHigh,
		message:  "privilege escalation attempt",
		class:    ThreatPrivilegeEscalation,
	},
	{
		family:   "lateral_movement",
		re:       regexp.MustCompile(`(?i)\bpsexec\b|\bwinrm\b|\bwmic\s+/node\b|\bssh\s+\S+@`),
		severity: SeverityHigh,
		message:  "lateral movement tooling",
		class:    ThreatLateralMovement,
	},
	{
		family:   "data_exfiltration",
		re:       regexp.MustCompile(`(?i)curl\s+[^|;]*(-d|--data|--upload-file)\b|wget\s+[^|;]*--post-(data|file)\b|\bnc\s+\S+\s+\d+|\bscp\s+\S+\s+\S+@`),
		severity: SeverityHigh,
		message:  "data exfiltration channel",
		class:    ThreatDataExfiltration,
	},
	{
		family:   "env_expansion",
		re:       regexp.MustCompile(`\$\{[^}]*\}|\$[A-Za-z_][A-Za-z0-9_]*`),
		severity: SeverityMedium,
		message:  "environment variable expansion",
	},
}

// ScanInjection runs the command text through the ordered pattern
// families, then independently through the obfuscation/encoding
// scanners. A clean command returns a valid outcome with no findings.
func (v *Validator) ScanInjection(text string) Outcome {
	out := CleanOutcome()
	if text == "" {
		return out
	}

	for _, rule := range injectionRules {
		if loc := rule.re.FindString(text); loc != "" {
			out.Add(Finding{
				Kind:     KindCommandInjection,
				Severity: rule.severity,
				Message:  rule.message,
				Pattern:  rule.family,
				Context:  truncate(loc, 80),
				Class:    rule.class,
			})
		}
	}

	for _, f := range scanEncodings(text) {
		out.Add(f)
	}
	return out
}

// containsDangerousLiteral reports whether the (lower-cased) text holds
// any known destructive fragment.
func containsDangerousLiteral(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, lit := range dangerousLiterals {
		if strings.Contains(lower, lit) {
			return lit, true
		}
	}
	return "", false
}
