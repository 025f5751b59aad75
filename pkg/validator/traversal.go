package validator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	traversalRe   = regexp.MustCompile(`\.\.[\\/]|\.\.$|\.{4,}[\\/]`)
	driveLetterRe = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	networkRe     = regexp.MustCompile(`^\\\\[^\\]+\\|^//[^/]+/`)
)

// sensitivePrefixes are platform paths that count as OS-specific
// absolute targets even when reached through a traversal prefix.
var sensitivePrefixes = []string{"/etc", "/proc", "/sys", "/dev", "/boot", "/root"}

// ScanPathTraversal inspects every parameter value (never the command
// text) for path escapes. A single value may yield more than one
// finding: "../../../etc/passwd" is both a traversal sequence and an
// absolute system path once the traversal prefix is resolved away.
// A nil parameter map is treated as a safe empty result.
func (v *Validator) ScanPathTraversal(params map[string]string) []PathFinding {
	if params == nil {
		return nil
	}

	var findings []PathFinding
	for name, value := range params {
		if value == "" {
			continue
		}
		add := func(violation PathViolation, desc string) {
			findings = append(findings, PathFinding{
				Parameter:   name,
				Value:       value,
				Violation:   violation,
				Description: desc,
			})
		}

		// Dotted names like "file..txt" are fine; only ".." adjacent to a
		// separator or at the end of the value escapes a directory.
		if traversalRe.MatchString(value) {
			add(PathTraversalSequence, fmt.Sprintf("parameter %q contains a parent-directory traversal sequence", name))
		}

		if strings.HasPrefix(value, "/") {
			add(PathAbsolute, fmt.Sprintf("parameter %q is an absolute POSIX path", name))
		} else if tail := resolveTraversalTail(value); tail != "" && hasSensitivePrefix(tail) {
			// Traversal prefix stripped away, the remainder lands on a
			// protected system path.
			add(PathAbsolute, fmt.Sprintf("parameter %q resolves to the protected path %q", name, tail))
		}

		if strings.HasPrefix(value, "~") || strings.Contains(value, "$HOME") || strings.Contains(value, "%USERPROFILE%") {
			add(PathHomeDirectory, fmt.Sprintf("parameter %q references the home directory", name))
		}

		if driveLetterRe.MatchString(value) {
			add(PathDriveLetter, fmt.Sprintf("parameter %q is a drive-letter absolute path", name))
		}

		if networkRe.MatchString(value) {
			add(PathNetworkShare, fmt.Sprintf("parameter %q is a network share path", name))
		}
	}
	return findings
}

// resolveTraversalTail strips leading ../ and ..\ runs and returns the
// remainder as a rooted path, or "" when the value has no traversal
// prefix.
func resolveTraversalTail(value string) string {
	rest := value
	stripped := false
	for {
		switch {
		case strings.HasPrefix(rest, "../"):
			rest = rest[3:]
			stripped = true
		case strings.HasPrefix(rest, `..\`):
			rest = rest[3:]
			stripped = true
		default:
			if !stripped {
				return ""
			}
			return "/" + strings.ReplaceAll(rest, `\`, "/")
		}
	}
}

func hasSensitivePrefix(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range sensitivePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
