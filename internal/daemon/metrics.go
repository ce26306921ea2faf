package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics holds operational metrics using OTEL semantic conventions
type ScanMetrics struct {
	scans           metric.Int64Counter
	scanDuration    metric.Float64Histogram
	policiesScanned metric.Int64Gauge
	batchRiskScore  metric.Int64Gauge
}

// NewScanMetrics creates scan metrics following OTEL semantic conventions
func NewScanMetrics() (*ScanMetrics, error) {
	meter := otel.Meter("vartija.daemon")

	scans, err := meter.Int64Counter(
		"vartija.daemon.scans",
		metric.WithDescription("Number of scan cycles run"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram(
		"vartija.daemon.scan.duration",
		metric.WithDescription("Duration of scan cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	policiesScanned, err := meter.Int64Gauge(
		"vartija.daemon.policies_scanned",
		metric.WithDescription("Number of policies fetched in the last scan"),
		metric.WithUnit("{policy}"),
	)
	if err != nil {
		return nil, err
	}

	batchRiskScore, err := meter.Int64Gauge(
		"vartija.daemon.batch_risk_score",
		metric.WithDescription("Aggregated risk score of the last scan"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &ScanMetrics{
		scans:           scans,
		scanDuration:    scanDuration,
		policiesScanned: policiesScanned,
		batchRiskScore:  batchRiskScore,
	}, nil
}

// RecordScan records one scan cycle with its status
func (m *ScanMetrics) RecordScan(ctx context.Context, status string, elapsed time.Duration) {
	m.scans.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.scanDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordPoliciesScanned records how many policies the last scan covered
func (m *ScanMetrics) RecordPoliciesScanned(ctx context.Context, count int64) {
	m.policiesScanned.Record(ctx, count)
}

// RecordBatchRisk records the aggregated risk of the last scan
func (m *ScanMetrics) RecordBatchRisk(ctx context.Context, score int64, risk string) {
	m.batchRiskScore.Record(ctx, score,
		metric.WithAttributes(attribute.String("risk", risk)),
	)
}
