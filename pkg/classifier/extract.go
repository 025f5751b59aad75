// Package classifier maps command text to an operational risk
// classification and extracts candidate commands from AI response text.
//
// Classification is an explicit ordered rule table evaluated top-down:
// the first matching rule wins, which encodes the precedence read-only >
// dangerous-pattern > service-management > process-management >
// high-risk-nondestructive > destructive > security-keyword >
// network-keyword > default without hidden control flow.
package classifier

import (
	"regexp"
	"strings"
)

// fencedBlockRe matches fenced code blocks tagged for the target shell.
// The canonical tag is "powershell"; "ps1" and "pwsh" are aliases.
var fencedBlockRe = regexp.MustCompile("(?s)```(?:powershell|ps1|pwsh)[ \t]*\r?\n(.*?)```")

// ExtractCommands locates shell-tagged fenced code blocks in an AI
// response and returns each non-empty line as a separate candidate
// command, preserving source order. A response with no fenced block
// yields an empty sequence.
//
// Line splitting means a multi-line pipeline becomes several candidate
// commands; every line is classified and policy-gated independently, so
// a destructive tail line is still caught by its own classification.
func ExtractCommands(responseText string) []string {
	if responseText == "" {
		return nil
	}

	var commands []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(responseText, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimRight(line, "\r")
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			commands = append(commands, line)
		}
	}
	return commands
}
