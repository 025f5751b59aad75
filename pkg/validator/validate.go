package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// Limits are the structural ceilings enforced by Validate.
type Limits struct {
	MaxCommandLength    int `yaml:"max_command_length"`
	MaxParameterCount   int `yaml:"max_parameter_count"`
	MaxParamNameLength  int `yaml:"max_param_name_length"`
	MaxParamValueLength int `yaml:"max_param_value_length"`
}

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxCommandLength:    10000,
		MaxParameterCount:   50,
		MaxParamNameLength:  100,
		MaxParamValueLength: 5000,
	}
}

// Validator is a pure scanner; it holds only immutable configuration and
// is safe for concurrent use.
type Validator struct {
	limits Limits
}

// New creates a Validator with the given limits. Zero-valued limits fall
// back to the defaults.
func New(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxCommandLength <= 0 {
		limits.MaxCommandLength = def.MaxCommandLength
	}
	if limits.MaxParameterCount <= 0 {
		limits.MaxParameterCount = def.MaxParameterCount
	}
	if limits.MaxParamNameLength <= 0 {
		limits.MaxParamNameLength = def.MaxParamNameLength
	}
	if limits.MaxParamValueLength <= 0 {
		limits.MaxParamValueLength = def.MaxParamValueLength
	}
	return &Validator{limits: limits}
}

// paramNameRe is the allow-list alphabet for parameter names.
var paramNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate runs the structural checks on a command and its parameters:
// empties, NUL bytes, length ceilings, balanced delimiters, and
// parameter-name alphabet. Content rules (injection, traversal) live in
// ScanInjection and ScanPathTraversal.
func (v *Validator) Validate(command string, params map[string]string) Outcome {
	out := CleanOutcome()

	if strings.TrimSpace(command) == "" {
		out.Add(Finding{
			Kind:     KindSyntaxError,
			Severity: SeverityCritical,
			Message:  "command is empty",
		})
		return out
	}

	// NUL bytes are fatal anywhere, before any other rule.
	if containsNullByte(command, params) {
		out.Add(Finding{
			Kind:     KindNullByteDetected,
			Severity: SeverityCritical,
			Message:  "NUL byte detected in command or parameters",
		})
		return out
	}

	if len(command) > v.limits.MaxCommandLength {
		out.Add(Finding{
			Kind:     KindLengthExceeded,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("command length %d exceeds ceiling %d", len(command), v.limits.MaxCommandLength),
		})
	}
	if len(params) > v.limits.MaxParameterCount {
		out.Add(Finding{
			Kind:     KindLengthExceeded,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("parameter count %d exceeds ceiling %d", len(params), v.limits.MaxParameterCount),
		})
	}
	for name, value := range params {
		if len(name) > v.limits.MaxParamNameLength {
			out.Add(Finding{
				Kind:     KindLengthExceeded,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("parameter name length %d exceeds ceiling %d", len(name), v.limits.MaxParamNameLength),
				Context:  truncate(name, 64),
			})
		}
		if len(value) > v.limits.MaxParamValueLength {
			out.Add(Finding{
				Kind:     KindLengthExceeded,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("parameter %q value length %d exceeds ceiling %d", name, len(value), v.limits.MaxParamValueLength),
			})
		}
		if !paramNameRe.MatchString(name) {
			out.Add(Finding{
				Kind:     KindInvalidParameterName,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("parameter name %q contains characters outside [A-Za-z0-9_-]", truncate(name, 64)),
			})
		}
	}

	checkBalance(command, &out)
	return out
}

// Scan is the combined pass the gate uses: structural validation plus
// injection and path-traversal scanning, merged into one outcome.
func (v *Validator) Scan(command string, params map[string]string) Outcome {
	out := v.Validate(command, params)
	if !out.Valid && out.Severity == SeverityCritical {
		// NUL byte or empty command; content rules add nothing.
		return out
	}
	out.Merge(v.ScanInjection(command))
	for _, pf := range v.ScanPathTraversal(params) {
		out.Add(Finding{
			Kind:     KindPathTraversal,
			Severity: SeverityHigh,
			Message:  pf.Description,
			Pattern:  string(pf.Violation),
			Context:  fmt.Sprintf("%s=%s", pf.Parameter, truncate(pf.Value, 128)),
		})
	}
	return out
}

func containsNullByte(command string, params map[string]string) bool {
	if strings.ContainsRune(command, 0) {
		return true
	}
	for name, value := range params {
		if strings.ContainsRune(name, 0) || strings.ContainsRune(value, 0) {
			return true
		}
	}
	return false
}

// checkBalance verifies quote parity and bracket nesting, naming the
// specific delimiter in each finding.
func checkBalance(command string, out *Outcome) {
	var doubles, singles int
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}

	inSingle, inDouble := false, false
	for _, r := range command {
		switch r {
		case '\'':
			if !inDouble {
				singles++
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				doubles++
				inDouble = !inDouble
			}
		case '(', '[', '{':
			if !inSingle && !inDouble {
				stack = append(stack, r)
			}
		case ')', ']', '}':
			if inSingle || inDouble {
				continue
			}
			want := pairs[r]
			if len(stack) == 0 || stack[len(stack)-1] != want {
				out.Add(Finding{
					Kind:     KindSyntaxError,
					Severity: SeverityHigh,
					Message:  fmt.Sprintf("unbalanced %q", r),
					Pattern:  string(r),
				})
				return
			}
			stack = stack[:len(stack)-1]
		}
	}
	if singles%2 != 0 {
		out.Add(Finding{
			Kind:     KindSyntaxError,
			Severity: SeverityHigh,
			Message:  "unbalanced single quote",
			Pattern:  "'",
		})
	}
	if doubles%2 != 0 {
		out.Add(Finding{
			Kind:     KindSyntaxError,
			Severity: SeverityHigh,
			Message:  "unbalanced double quote",
			Pattern:  `"`,
		})
	}
	if len(stack) > 0 {
		out.Add(Finding{
			Kind:     KindSyntaxError,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("unclosed %q", stack[len(stack)-1]),
			Pattern:  string(stack[len(stack)-1]),
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
