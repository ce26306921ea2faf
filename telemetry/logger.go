package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vartija/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for engine operations

// LogAnalysis records a completed policy analysis.
func (l *Logger) LogAnalysis(ctx context.Context, service string, result types.AnalysisResult) {
	l.WithContext(ctx).Info().
		Str("service", service).
		Bool("valid", result.Valid).
		Int("findings", result.Stats.Total).
		Int("risk_score", result.RiskScore).
		Str("overall_risk", string(result.OverallRisk)).
		Str("account_type", string(result.AccountInfo.AccountType)).
		Msg("policy analyzed")
}

// LogSuppression records a whitelist match against a finding.
func (l *Logger) LogSuppression(ctx context.Context, service, ruleID string, tier int) {
	l.WithContext(ctx).Debug().
		Str("service", service).
		Str("rule_id", ruleID).
		Int("tier", tier).
		Msg("finding suppressed")
}

// LogStoreError records a persistence failure. Persistence failures are
// reported separately and never invalidate a computed result.
func (l *Logger) LogStoreError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("store operation failed")
}
