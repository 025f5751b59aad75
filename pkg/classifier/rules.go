package classifier

import (
	"regexp"
	"strings"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

// Rule is one (predicate, classification) pair in the ordered table.
// Rules are exported so precedence can be asserted per rule in tests.
type Rule struct {
	Name     string
	match    func(cmd string) bool
	classify func(cmd string) contracts.CommandClassification
}

// Matches evaluates the rule's predicate against normalized command
// text (lower case, trimmed, trailing comment stripped).
func (r Rule) Matches(cmd string) bool {
	return r.match(Normalize(cmd))
}

// Normalize lower-cases, trims, and strips a trailing line comment so
// rules match on the operative text only.
func Normalize(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if i := strings.Index(cmd, "#"); i >= 0 {
		cmd = strings.TrimSpace(cmd[:i])
	}
	return strings.ToLower(cmd)
}

var readOnlyPrefixes = []string{
	"get-", "test-", "measure-", "select-", "show-",
	"ls", "dir", "cat ", "pwd", "whoami", "hostname",
}

var (
	dangerousOpRe = regexp.MustCompile(`^(format-volume|format-disk|clear-disk|remove-partition|stop-computer|restart-computer)\b|^(mkfs|dd\s+if=)|rm\s+-[a-z]*r[a-z]*f\s+/\S*$`)
	serviceRe     = regexp.MustCompile(`^(start|stop|restart|set|suspend|resume)-service\b|^(systemctl\s+(start|stop|restart|reload|enable|disable))\b|^service\s+\S+\s+(start|stop|restart)`)
	processRe     = regexp.MustCompile(`^stop-process\b|^(taskkill|pkill|killall)\b|^kill\s`)
	highRiskRe    = regexp.MustCompile(`^set-executionpolicy\b|^(new|set|remove|disable|enable)-netfirewallrule\b|^netsh\s+advfirewall\b|^(iptables|ufw)\s`)
	destructiveRe = regexp.MustCompile(`^remove-item\b|^(rm|del|rd)\s|^clear-eventlog\b|^wevtutil\s+cl\b|-recurse\b.*-force\b|^truncate\s`)
	securityKwRe  = regexp.MustCompile(`executionpolicy|firewall`)
	networkKwRe   = regexp.MustCompile(`^(new|set|remove)-netipaddress\b|^set-dnsclientserveraddress\b|netadapter|^netsh\s|^(ip|ifconfig)\s|^route\s`)
)

// Rules is the ordered classification table. First match wins.
var Rules = []Rule{
	{
		Name:  "empty",
		match: func(cmd string) bool { return cmd == "" },
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:           contracts.RiskLow,
				Category:       contracts.CategoryQuery,
				TimeoutSeconds: 60,
				Reasoning:      "empty command has no effect",
			}
		},
	},
	{
		Name: "read_only",
		match: func(cmd string) bool {
			for _, p := range readOnlyPrefixes {
				if strings.HasPrefix(cmd, p) || cmd == strings.TrimSpace(p) {
					return true
				}
			}
			return false
		},
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:           contracts.RiskLow,
				Category:       contracts.CategoryQuery,
				TimeoutSeconds: 60,
				Reasoning:      "read-only query verb",
			}
		},
	},
	{
		Name:  "dangerous_operation",
		match: dangerousOpRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskCritical,
				Category:         contracts.CategoryFileOperation,
				IsDestructive:    true,
				RequiresApproval: true,
				TimeoutSeconds:   600,
				Reasoning:        "irreversible system-level operation",
			}
		},
	},
	{
		// Service management takes precedence over destructive
		// detection: Stop-Service is never marked destructive.
		Name:  "service_management",
		match: serviceRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskMedium,
				Category:         contracts.CategoryServiceManagement,
				RequiresApproval: true,
				TimeoutSeconds:   120,
				Reasoning:        "service management verb",
			}
		},
	},
	{
		Name:  "process_management",
		match: processRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskMedium,
				Category:         contracts.CategoryProcessManagement,
				RequiresApproval: true,
				TimeoutSeconds:   60,
				Reasoning:        "process termination verb",
			}
		},
	},
	{
		Name:  "high_risk_security",
		match: highRiskRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskHigh,
				Category:         contracts.CategorySecurityPolicy,
				RequiresApproval: true,
				TimeoutSeconds:   300,
				Reasoning:        "security posture change",
			}
		},
	},
	{
		Name:  "destructive_verb",
		match: destructiveRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskHigh,
				Category:         contracts.CategoryFileOperation,
				IsDestructive:    true,
				RequiresApproval: true,
				TimeoutSeconds:   300,
				Reasoning:        "destructive data-loss verb",
			}
		},
	},
	{
		Name:  "security_keyword",
		match: securityKwRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskHigh,
				Category:         contracts.CategorySecurityPolicy,
				RequiresApproval: true,
				TimeoutSeconds:   300,
				Reasoning:        "touches security policy configuration",
			}
		},
	},
	{
		Name:  "network_keyword",
		match: networkKwRe.MatchString,
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskMedium,
				Category:         contracts.CategoryNetworkConfig,
				RequiresApproval: true,
				TimeoutSeconds:   120,
				Reasoning:        "network configuration change",
			}
		},
	},
	{
		// Fail-safe default: unknown commands always require approval.
		Name:  "default",
		match: func(string) bool { return true },
		classify: func(string) contracts.CommandClassification {
			return contracts.CommandClassification{
				Risk:             contracts.RiskMedium,
				Category:         contracts.CategoryUnknown,
				RequiresApproval: true,
				TimeoutSeconds:   120,
				Reasoning:        "unrecognized command, fail-safe default",
			}
		},
	},
}
