// Package daemon runs continuous policy scans on an interval, feeding
// fetched policies through the orchestrator and exposing health state.
package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yairfalse/vartija/orchestrator"
	"github.com/yairfalse/vartija/providers/aws"
	"github.com/yairfalse/vartija/telemetry"
	"github.com/yairfalse/vartija/types"
)

// PolicySource fetches live policy documents for a scan cycle.
type PolicySource interface {
	FetchAll(ctx context.Context) ([]aws.PolicyRecord, error)
}

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Options  types.AnalysisOptions
}

// Daemon manages the continuous scan loop
type Daemon struct {
	interval  time.Duration
	options   types.AnalysisOptions
	source    PolicySource
	orch      *orchestrator.Orchestrator
	metrics   *ScanMetrics
	logger    *telemetry.Logger
	startTime time.Time
	scanCount atomic.Int64
	lastRisk  atomic.Int64
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, source PolicySource, orch *orchestrator.Orchestrator) (*Daemon, error) {
	metrics, err := NewScanMetrics()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		interval:  config.Interval,
		options:   config.Options,
		source:    source,
		orch:      orch,
		metrics:   metrics,
		logger:    telemetry.NewLogger("daemon"),
		startTime: time.Now(),
	}, nil
}

// Start begins the scan loop. The first scan runs immediately.
func (d *Daemon) Start(ctx context.Context) error {
	d.runScan(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runScan(ctx)
		}
	}
}

func (d *Daemon) runScan(ctx context.Context) {
	start := time.Now()
	d.scanCount.Add(1)

	records, err := d.source.FetchAll(ctx)
	if err != nil {
		d.logger.WithContext(ctx).Error().Err(err).Msg("scan fetch failed")
		d.metrics.RecordScan(ctx, "error", time.Since(start))
		return
	}

	inputs := make([]orchestrator.PolicyInput, len(records))
	for i, rec := range records {
		opts := d.options
		opts.RoleName = rec.RoleName
		opts.IsTrustPolicy = rec.IsTrustPolicy
		inputs[i] = orchestrator.PolicyInput{
			Name:     rec.Name,
			Service:  rec.Service,
			Document: rec.Document,
			Options:  opts,
		}
	}

	batch := d.orch.AnalyzeBatch(ctx, inputs)
	d.lastRisk.Store(int64(batch.RiskScore))

	d.metrics.RecordScan(ctx, "ok", time.Since(start))
	d.metrics.RecordPoliciesScanned(ctx, int64(len(records)))
	d.metrics.RecordBatchRisk(ctx, int64(batch.RiskScore), string(batch.Risk))

	d.logger.WithContext(ctx).Info().
		Int("policies", len(records)).
		Int("risk_score", batch.RiskScore).
		Str("risk", string(batch.Risk)).
		Dur("duration", time.Since(start)).
		Msg("scan complete")
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Uptime:    int64(time.Since(d.startTime).Seconds()),
		Scans:     d.scanCount.Load(),
		RiskScore: d.lastRisk.Load(),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime_seconds"`
	Scans     int64  `json:"scans"`
	RiskScore int64  `json:"risk_score"`
}

// ScanCount returns total scans run
func (d *Daemon) ScanCount() int64 {
	return d.scanCount.Load()
}
