// Package rulepack evaluates operator-supplied Rego rule packs against
// policy documents, feeding extra findings into the analysis pipeline.
// Packs extend the built-in detectors; the core analysis never depends
// on them.
package rulepack

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vartija/telemetry"
	"github.com/yairfalse/vartija/types"
)

// RegoExpressionValue represents the dynamic value from Rego expression
// results. OPA returns arbitrary JSON structures whose shape the pack
// determines at runtime, so this is necessarily a map.
type RegoExpressionValue map[string]interface{}

// Engine holds compiled rule packs.
type Engine struct {
	logger  *telemetry.Logger
	queries map[string]rego.PreparedEvalQuery
}

// PackInput is the document a pack evaluates, with its caller context.
type PackInput struct {
	Document  *types.PolicyDocument `json:"document"`
	Service   string                `json:"service"`
	Options   types.AnalysisOptions `json:"options"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewEngine creates an empty rule pack engine.
func NewEngine() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("rulepack"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPack compiles a Rego rule pack under the vartija namespace.
func (e *Engine) LoadPack(ctx context.Context, name string, regoCode string) error {
	ctx, span := telemetry.Tracer.Start(ctx, "rulepack.load",
		trace.WithAttributes(attribute.String("pack.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.vartija"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		e.logger.WithContext(ctx).Error().
			Err(err).
			Str("pack_name", name).
			Msg("failed to compile rule pack")
		return fmt.Errorf("failed to compile rule pack %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("pack_name", name).
		Msg("rule pack loaded")

	return nil
}

// Packs returns the loaded pack names.
func (e *Engine) Packs() []string {
	names := make([]string, 0, len(e.queries))
	for name := range e.queries {
		names = append(names, name)
	}
	return names
}

// Evaluate runs every loaded pack against the document. A failing pack
// is logged and skipped; the other packs still run.
func (e *Engine) Evaluate(ctx context.Context, doc *types.PolicyDocument, service string, opts types.AnalysisOptions) []types.Finding {
	ctx, span := telemetry.Tracer.Start(ctx, "rulepack.evaluate",
		trace.WithAttributes(
			attribute.String("service", service),
			attribute.Int("packs", len(e.queries))))
	defer span.End()

	input := PackInput{
		Document:  doc,
		Service:   service,
		Options:   opts,
		Timestamp: time.Now(),
	}

	var findings []types.Finding
	for name, query := range e.queries {
		finding, matched, err := e.evaluatePack(ctx, query, input)
		if err != nil {
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("pack_name", name).
				Msg("rule pack evaluation failed")
			continue
		}
		if !matched {
			continue
		}
		finding.Type = "rulepack:" + name
		finding.Service = service
		finding.DetectionMethod = types.DetectionPattern
		findings = append(findings, finding)
	}

	return findings
}

func (e *Engine) evaluatePack(ctx context.Context, query rego.PreparedEvalQuery, input PackInput) (types.Finding, bool, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return types.Finding{}, false, fmt.Errorf("evaluation failed: %w", err)
	}

	if len(results) == 0 {
		return types.Finding{}, false, nil
	}

	var finding types.Finding
	matched := false

	for _, res := range results {
		for key, value := range res.Bindings {
			if bindFindingValue(key, value, &finding) {
				matched = true
			}
		}
		if len(res.Expressions) == 0 {
			continue
		}
		switch expr := res.Expressions[0].Value.(type) {
		case RegoExpressionValue:
			for key, value := range expr {
				if bindFindingValue(key, value, &finding) {
					matched = true
				}
			}
		case map[string]interface{}:
			for key, value := range expr {
				if bindFindingValue(key, value, &finding) {
					matched = true
				}
			}
		}
	}

	if matched && finding.Severity.Rank() == 0 {
		finding.Severity = types.SeverityMedium
	}
	return finding, matched, nil
}

func bindFindingValue(key string, value interface{}, finding *types.Finding) bool {
	switch key {
	case "severity":
		if str, ok := value.(string); ok {
			finding.Severity = types.Severity(str)
			return true
		}
	case "description":
		if str, ok := value.(string); ok {
			finding.Description = str
			return true
		}
	case "recommendation":
		if str, ok := value.(string); ok {
			finding.Recommendation = str
			return true
		}
	case "positive":
		if b, ok := value.(bool); ok {
			finding.Positive = b
			return true
		}
	}
	return false
}
