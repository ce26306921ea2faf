package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanMetrics(t *testing.T) {
	m, err := NewScanMetrics()
	require.NoError(t, err)

	assert.NotNil(t, m.scans)
	assert.NotNil(t, m.scanDuration)
	assert.NotNil(t, m.policiesScanned)
	assert.NotNil(t, m.batchRiskScore)
}

func TestScanMetricsRecord(t *testing.T) {
	m, err := NewScanMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	// Recording against the default no-op meter must not panic.
	m.RecordScan(ctx, "ok", 2*time.Second)
	m.RecordScan(ctx, "error", 100*time.Millisecond)
	m.RecordPoliciesScanned(ctx, 42)
	m.RecordBatchRisk(ctx, 87, "high")
}
