package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversight-labs/opsgate/pkg/contracts"
)

func TestDisabledProviderIsUsable(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, p)

	// Every record path must be a no-op, not a panic, when no
	// collector is configured.
	p.RecordDecision(ctx, contracts.ReasonAllowed, true)
	p.RecordAuditFailure(ctx)
	p.RecordConflict(ctx)
	p.RecordError(ctx, errors.New("boom"))

	opCtx, done := p.TrackOperation(ctx, "test.op")
	require.NotNil(t, opCtx)
	done(nil)

	_, done = p.TrackOperation(ctx, "test.op")
	done(errors.New("boom"))

	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "opsgate", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}
