// Package orchestrator coordinates the analyze → suppress → persist
// flow around the pure analysis engine. Only this layer touches shared
// mutable state; a store failure never invalidates an already-computed
// result.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vartija/analyzer"
	"github.com/yairfalse/vartija/rulepack"
	"github.com/yairfalse/vartija/suppress"
	"github.com/yairfalse/vartija/telemetry"
	"github.com/yairfalse/vartija/types"
)

// defaultWorkers bounds batch parallelism.
const defaultWorkers = 8

// Orchestrator runs analyses and applies the whitelist filter.
type Orchestrator struct {
	engine   *analyzer.Engine
	matcher  *suppress.Matcher
	packs    *rulepack.Engine
	rules    RuleStore
	findings FindingStore
	logger   *telemetry.Logger
	workers  int
}

// New creates an orchestrator. Both stores are optional: without a rule
// store no suppression happens, without a finding store nothing is
// persisted.
func New(engine *analyzer.Engine) *Orchestrator {
	return &Orchestrator{
		engine:  engine,
		matcher: suppress.NewMatcher(),
		logger:  telemetry.NewLogger("orchestrator"),
		workers: defaultWorkers,
	}
}

// WithRuleStore sets the whitelist rule source.
func (o *Orchestrator) WithRuleStore(s RuleStore) *Orchestrator {
	o.rules = s
	return o
}

// WithFindingStore sets the finding sink.
func (o *Orchestrator) WithFindingStore(s FindingStore) *Orchestrator {
	o.findings = s
	return o
}

// WithRulePacks sets the optional Rego rule pack engine. Pack findings
// join the built-in detectors' findings before suppression.
func (o *Orchestrator) WithRulePacks(e *rulepack.Engine) *Orchestrator {
	o.packs = e
	return o
}

// AnalyzeOne runs the full flow for a single policy.
func (o *Orchestrator) AnalyzeOne(ctx context.Context, input PolicyInput) Outcome {
	ctx, span := telemetry.Tracer.Start(ctx, "orchestrator.analyze",
		trace.WithAttributes(
			attribute.String("policy.name", input.Name),
			attribute.String("policy.service", input.Service)))
	defer span.End()

	start := time.Now()
	result := o.engine.AnalyzeJSON(input.Document, input.Service, input.Options)

	outcome := Outcome{Name: input.Name, Result: result}
	if result.Valid {
		o.applyRulePacks(ctx, input, &outcome)
		o.applySuppression(ctx, &outcome)
		o.persistFindings(ctx, &outcome)
	}

	o.recordMetrics(ctx, outcome, time.Since(start))
	o.logger.LogAnalysis(ctx, outcome.Result.Service, outcome.Result)

	return outcome
}

// AnalyzeBatch runs N independent analyses in parallel. The output
// preserves input order and length. Cancelling the context discards
// not-yet-started work; those outcomes come back invalid.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, inputs []PolicyInput) BatchResult {
	ctx, span := telemetry.Tracer.Start(ctx, "orchestrator.analyze_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(inputs))))
	defer span.End()

	batch := BatchResult{
		Outcomes:  make([]Outcome, len(inputs)),
		StartTime: time.Now(),
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := o.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				batch.Outcomes[idx] = o.AnalyzeOne(ctx, inputs[idx])
			}
		}()
	}

	for idx := range inputs {
		select {
		case <-ctx.Done():
			batch.Outcomes[idx] = cancelledOutcome(inputs[idx])
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	results := make([]types.AnalysisResult, len(batch.Outcomes))
	for i, out := range batch.Outcomes {
		results[i] = out.Result
	}
	batch.RiskScore, batch.Risk = analyzer.AggregateResults(results)
	batch.Duration = time.Since(batch.StartTime)

	o.logger.WithContext(ctx).Info().
		Int("policies", len(inputs)).
		Int("risk_score", batch.RiskScore).
		Str("risk", string(batch.Risk)).
		Dur("duration", batch.Duration).
		Msg("batch analysis complete")

	return batch
}

func cancelledOutcome(input PolicyInput) Outcome {
	return Outcome{
		Name: input.Name,
		Result: types.AnalysisResult{
			Valid:       false,
			Error:       "analysis cancelled",
			Service:     input.Service,
			Findings:    []types.Finding{},
			OverallRisk: types.SeverityLow,
			AccountInfo: types.DefaultAccountContext(),
		},
	}
}

// applyRulePacks appends pack findings and re-tallies. A pack finding
// that outranks the computed risk raises it; packs never lower risk.
func (o *Orchestrator) applyRulePacks(ctx context.Context, input PolicyInput, outcome *Outcome) {
	if o.packs == nil {
		return
	}

	doc, err := types.ParsePolicyDocument(input.Document)
	if err != nil {
		return
	}

	extra := o.packs.Evaluate(ctx, doc, outcome.Result.Service, input.Options)
	if len(extra) == 0 {
		return
	}

	outcome.Result.Findings = append(outcome.Result.Findings, extra...)
	outcome.Result.Stats = types.Tally(outcome.Result.Findings)

	for _, f := range extra {
		if !f.Positive && f.Severity.Rank() > outcome.Result.OverallRisk.Rank() {
			outcome.Result.OverallRisk = f.Severity
		}
	}
}

// applySuppression marks findings matching stored whitelist rules. A
// rule fetch failure skips suppression entirely; the result stands.
func (o *Orchestrator) applySuppression(ctx context.Context, outcome *Outcome) {
	if o.rules == nil {
		return
	}

	service := outcome.Result.Service
	rules, err := o.rules.RulesByService(service)
	if err != nil {
		o.logger.LogStoreError(ctx, "fetch_rules", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	for i := range outcome.Result.Findings {
		finding := &outcome.Result.Findings[i]
		if finding.Positive {
			continue
		}

		match := o.matcher.Evaluate(*finding, rules)
		if !match.Matched {
			continue
		}

		finding.Suppressed = true
		outcome.Suppressed++
		o.logger.LogSuppression(ctx, service, match.Rule.ID, match.Tier)

		if telemetry.SuppressionMatches != nil {
			telemetry.SuppressionMatches.Add(ctx, 1, metric.WithAttributes(
				attribute.Int("tier", match.Tier)))
		}

		// Side effect kept apart from the pure matching decision.
		if err := o.rules.RecordRuleMatch(match.Rule.ID); err != nil {
			o.logger.LogStoreError(ctx, "record_rule_match", err)
		}
	}
}

// persistFindings saves active findings. Failure is reported on the
// outcome, never propagated into the result.
func (o *Orchestrator) persistFindings(ctx context.Context, outcome *Outcome) {
	if o.findings == nil {
		return
	}

	for i := range outcome.Result.Findings {
		if outcome.Result.Findings[i].Suppressed {
			continue
		}
		saved, err := o.findings.SaveFinding(outcome.Result.Findings[i])
		if err != nil {
			outcome.SaveError = err.Error()
			o.logger.LogStoreError(ctx, "save_finding", err)
			return
		}
		outcome.Result.Findings[i] = saved

		if telemetry.StoreWrites != nil {
			telemetry.StoreWrites.Add(ctx, 1)
		}
	}
	outcome.Saved = true
}

func (o *Orchestrator) recordMetrics(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	if telemetry.PoliciesAnalyzed != nil {
		telemetry.PoliciesAnalyzed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("service", outcome.Result.Service)))
	}
	if telemetry.AnalysisDuration != nil {
		telemetry.AnalysisDuration.Record(ctx, elapsed.Seconds())
	}
	if telemetry.FindingsDetected != nil {
		for _, f := range outcome.Result.Findings {
			telemetry.FindingsDetected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("severity", string(f.Severity)),
				attribute.Bool("positive", f.Positive)))
		}
	}
}
