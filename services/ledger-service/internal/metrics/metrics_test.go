package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics/metricstest"
)

func TestCounters(t *testing.T) {
	mp, reader := metricstest.NewProvider()
	m := New(mp)
	ctx := context.Background()

	m.EventWritten(ctx, "LoanApprovedBusinessEvent")
	m.EventWritten(ctx, "LoanApprovedBusinessEvent")
	m.Duplicate(ctx, "LoanApprovedBusinessEvent")
	m.Purged(ctx, 3)

	assert.Equal(t, int64(2), metricstest.Sum(t, reader, "outbox.events.written"))
	assert.Equal(t, int64(1), metricstest.Sum(t, reader, "outbox.events.duplicates"))
	assert.Equal(t, int64(3), metricstest.Sum(t, reader, "outbox.rows.purged"))
	assert.Zero(t, metricstest.Sum(t, reader, "outbox.publish.failures"))
}

func TestNew_NilProvider(t *testing.T) {
	require.NotNil(t, New(nil))
}
