package rulepack

import (
	"context"
	"testing"

	"github.com/yairfalse/vartija/types"
)

const wildcardPack = `package vartija

import rego.v1

has_wildcard_action if {
	some stmt in input.document.Statement
	stmt.Action == "*"
}

severity := "critical" if has_wildcard_action

description := "Organization rule: wildcard actions are forbidden" if has_wildcard_action

recommendation := "List the required actions explicitly" if has_wildcard_action`

const positivePack = `package vartija

import rego.v1

has_mfa if {
	some stmt in input.document.Statement
	stmt.Condition.Bool["aws:MultiFactorAuthPresent"]
}

severity := "low" if has_mfa

description := "Organization rule: MFA condition present" if has_mfa

positive := true if has_mfa`

func mustParse(t *testing.T, raw string) *types.PolicyDocument {
	t.Helper()
	doc, err := types.ParsePolicyDocument([]byte(raw))
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	return doc
}

func TestEngine_LoadAndEvaluate(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	if err := engine.LoadPack(ctx, "wildcards", wildcardPack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}

	doc := mustParse(t, `{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`)
	findings := engine.Evaluate(ctx, doc, "iam", types.AnalysisOptions{})

	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Type != "rulepack:wildcards" {
		t.Errorf("Type = %q, want rulepack:wildcards", f.Type)
	}
	if f.Severity != types.SeverityCritical {
		t.Errorf("Severity = %q, want critical", f.Severity)
	}
	if f.Service != "iam" {
		t.Errorf("Service = %q, want iam", f.Service)
	}
	if f.Recommendation == "" {
		t.Error("Expected a recommendation")
	}
}

func TestEngine_NoMatch(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	if err := engine.LoadPack(ctx, "wildcards", wildcardPack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}

	doc := mustParse(t, `{"Statement":[{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::data/*"}]}`)
	findings := engine.Evaluate(ctx, doc, "s3", types.AnalysisOptions{})

	if len(findings) != 0 {
		t.Fatalf("Expected no findings, got %d", len(findings))
	}
}

func TestEngine_PositiveFinding(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	if err := engine.LoadPack(ctx, "mfa", positivePack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}

	doc := mustParse(t, `{"Statement":[{
		"Effect": "Allow",
		"Action": "iam:ChangePassword",
		"Resource": "arn:aws:iam::123456789012:user/${aws:username}",
		"Condition": {"Bool": {"aws:MultiFactorAuthPresent": "true"}}
	}]}`)
	findings := engine.Evaluate(ctx, doc, "iam", types.AnalysisOptions{})

	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	if !findings[0].Positive {
		t.Error("Expected a positive finding")
	}
}

func TestEngine_MultiplePacks(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	if err := engine.LoadPack(ctx, "wildcards", wildcardPack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}
	if err := engine.LoadPack(ctx, "mfa", positivePack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}

	if got := len(engine.Packs()); got != 2 {
		t.Fatalf("Packs() = %d, want 2", got)
	}

	doc := mustParse(t, `{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`)
	findings := engine.Evaluate(ctx, doc, "iam", types.AnalysisOptions{})

	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding from the wildcard pack, got %d", len(findings))
	}
}

func TestEngine_InvalidPack(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	err := engine.LoadPack(ctx, "broken", `package vartija
this is not rego`)
	if err == nil {
		t.Fatal("Expected a compile error")
	}
	if len(engine.Packs()) != 0 {
		t.Error("Broken pack must not be registered")
	}
}

func TestEngine_DefaultSeverity(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine()

	pack := `package vartija

import rego.v1

description := "flagged" if {
	some stmt in input.document.Statement
	stmt.Action == "*"
}`

	if err := engine.LoadPack(ctx, "minimal", pack); err != nil {
		t.Fatalf("Failed to load pack: %v", err)
	}

	doc := mustParse(t, `{"Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`)
	findings := engine.Evaluate(ctx, doc, "iam", types.AnalysisOptions{})

	if len(findings) != 1 {
		t.Fatalf("Expected 1 finding, got %d", len(findings))
	}
	if findings[0].Severity != types.SeverityMedium {
		t.Errorf("Severity = %q, want medium default", findings[0].Severity)
	}
}
