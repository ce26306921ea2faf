package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vartija/analyzer"
	"github.com/yairfalse/vartija/orchestrator"
	"github.com/yairfalse/vartija/providers/aws"
	"github.com/yairfalse/vartija/types"
)

type fakeSource struct {
	records []aws.PolicyRecord
	err     error
	calls   atomic.Int64
}

func (s *fakeSource) FetchAll(_ context.Context) ([]aws.PolicyRecord, error) {
	s.calls.Add(1)
	return s.records, s.err
}

func newTestDaemon(t *testing.T, source PolicySource, interval time.Duration) *Daemon {
	t.Helper()
	orch := orchestrator.New(analyzer.NewEngine())
	d, err := NewDaemon(Config{
		Interval: interval,
		Options:  types.AnalysisOptions{Environment: types.EnvProduction},
	}, source, orch)
	require.NoError(t, err)
	return d
}

func TestDaemonStartAndShutdown(t *testing.T) {
	source := &fakeSource{
		records: []aws.PolicyRecord{{
			Name:     "role/inline",
			Service:  "iam",
			Document: []byte(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::data/*"}]}`),
		}},
	}
	daemon := newTestDaemon(t, source, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	// First scan runs immediately, the ticker adds more.
	time.Sleep(150 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, daemon.ScanCount(), int64(2))
	assert.GreaterOrEqual(t, source.calls.Load(), int64(2))
}

func TestDaemonScanFetchFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("throttled")}
	daemon := newTestDaemon(t, source, time.Minute)

	daemon.runScan(context.Background())

	assert.Equal(t, int64(1), daemon.ScanCount())
	health := daemon.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(0), health.RiskScore)
}

func TestDaemonHealthTracksRisk(t *testing.T) {
	source := &fakeSource{
		records: []aws.PolicyRecord{{
			Name:     "danger",
			Service:  "iam",
			Document: []byte(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`),
		}},
	}
	daemon := newTestDaemon(t, source, time.Minute)

	daemon.runScan(context.Background())

	health := daemon.Health()
	assert.Equal(t, int64(1), health.Scans)
	assert.Greater(t, health.RiskScore, int64(0))
}
