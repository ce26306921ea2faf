// Package analyzer implements the policy risk-analysis engine: account
// classification, pattern matching, per-statement structural checks,
// contextual checks and risk scoring. The pipeline is a pure,
// synchronous computation over its inputs; it performs no I/O and is
// safe to run concurrently across requests.
package analyzer

import (
	"github.com/yairfalse/vartija/telemetry"
	"github.com/yairfalse/vartija/types"
)

// Engine runs the full analysis pipeline for a registered set of
// service variants. The registry is immutable after construction.
type Engine struct {
	services map[string]ServiceAnalyzer
	logger   *telemetry.Logger
}

// NewEngine creates an engine with the built-in IAM, S3 and Lambda
// variants registered.
func NewEngine() *Engine {
	e := &Engine{
		services: make(map[string]ServiceAnalyzer),
		logger:   telemetry.NewLogger("analyzer"),
	}
	for _, svc := range []ServiceAnalyzer{iamAnalyzer{}, s3Analyzer{}, lambdaAnalyzer{}} {
		e.services[svc.Service()] = svc
	}
	return e
}

// Services returns the registered service keys.
func (e *Engine) Services() []string {
	keys := make([]string, 0, len(e.services))
	for k := range e.services {
		keys = append(keys, k)
	}
	return keys
}

// lookup returns the variant for a service, falling back to IAM for
// unknown keys so callers always get an analysis.
func (e *Engine) lookup(service string) ServiceAnalyzer {
	if svc, ok := e.services[service]; ok {
		return svc
	}
	e.logger.Warn().Str("service", service).Msg("unknown service, analyzing as iam")
	return e.services["iam"]
}

// AnalyzeJSON decodes and analyzes a raw policy document. Malformed
// input yields an invalid result, never an error past this boundary.
func (e *Engine) AnalyzeJSON(raw []byte, service string, opts types.AnalysisOptions) types.AnalysisResult {
	doc, err := types.ParsePolicyDocument(raw)
	if err != nil {
		e.logger.Warn().Err(err).Str("service", service).Msg("undecodable policy document")
		return types.AnalysisResult{
			Valid:       false,
			Error:       err.Error(),
			Service:     service,
			Findings:    []types.Finding{},
			OverallRisk: types.SeverityLow,
			AccountInfo: types.DefaultAccountContext(),
		}
	}
	return e.Analyze(doc, service, opts)
}

// Analyze runs classifier, detectors, aggregator and scorer over a
// parsed document. Analyzing the same document and options twice yields
// identical findings and score.
func (e *Engine) Analyze(doc *types.PolicyDocument, service string, opts types.AnalysisOptions) types.AnalysisResult {
	svc := e.lookup(service)
	acct := Classify(doc, opts)
	serialized := serialize(doc)

	findings := matchPatterns(svc.Service(), svc.Patterns(), serialized)

	for idx, stmt := range doc.Statements {
		if !validateStatement(stmt) {
			e.logger.Warn().
				Int("statement", idx).
				Str("effect", stmt.Effect).
				Msg("skipping statement with unexpected shape")
			continue
		}
		findings = append(findings, svc.AnalyzeStatement(stmt, idx)...)
	}

	findings = append(findings, svc.AnalyzeContext(doc, opts)...)

	stats := types.Tally(findings)

	return types.AnalysisResult{
		Valid:       true,
		Service:     svc.Service(),
		Findings:    findings,
		Stats:       stats,
		OverallRisk: OverallRisk(svc, stats, acct),
		RiskScore:   Score(svc, serialized, findings, acct),
		AccountInfo: acct,
	}
}
