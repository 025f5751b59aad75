package classifier

import "github.com/oversight-labs/opsgate/pkg/contracts"

// Classify maps a command to its risk classification by evaluating the
// ordered rule table top-down. It is case-insensitive, strips trailing
// line comments, and never fails: the final table entry catches every
// command with a requires-approval default.
func Classify(command string) contracts.CommandClassification {
	normalized := Normalize(command)
	for _, rule := range Rules {
		if rule.match(normalized) {
			return rule.classify(normalized)
		}
	}
	// Unreachable: the default rule matches everything.
	return contracts.CommandClassification{
		Risk:             contracts.RiskMedium,
		Category:         contracts.CategoryUnknown,
		RequiresApproval: true,
		TimeoutSeconds:   120,
		Reasoning:        "unrecognized command, fail-safe default",
	}
}

// MatchedRule returns the name of the first rule that matches, for audit
// reasoning and precedence tests.
func MatchedRule(command string) string {
	normalized := Normalize(command)
	for _, rule := range Rules {
		if rule.match(normalized) {
			return rule.Name
		}
	}
	return "default"
}
