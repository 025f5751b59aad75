package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testContext() contracts.ExecutionContext {
	return contracts.ExecutionContext{
		AgentID:     "agent-1",
		Role:        contracts.RoleSupervised,
		Environment: contracts.EnvStaging,
		SessionID:   "sess-1",
		UserID:      "user-1",
		TenantID:    "tenant-a",
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager(nil)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewTokenManager(testSecret)
	assert.NoError(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	tm, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	token, err := tm.Issue(testContext(), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, testContext(), got)
}

func TestIssueRefusesInvalidContext(t *testing.T) {
	tm, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	ectx := testContext()
	ectx.AgentID = ""
	_, err = tm.Issue(ectx, time.Hour)
	assert.ErrorIs(t, err, contracts.ErrMissingAgentID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer, err := NewTokenManager(testSecret)
	require.NoError(t, err)
	verifier, err := NewTokenManager([]byte("a completely different secret!!!"))
	require.NoError(t, err)

	token, err := signer.Issue(testContext(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	tm, err := NewTokenManager(testSecret)
	require.NoError(t, err)
	tm = tm.WithClock(func() time.Time { return now })

	token, err := tm.Issue(testContext(), 15*time.Minute)
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.NoError(t, err, "valid within its lifetime")

	now = issued.Add(16 * time.Minute)
	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	tm, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	for _, tok := range []string{"", "not.a.token", "eyJhbGciOiJub25lIn0.e30."} {
		_, err := tm.Parse(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}
