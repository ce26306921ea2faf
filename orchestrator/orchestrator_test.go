package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vartija/analyzer"
	"github.com/yairfalse/vartija/rulepack"
	"github.com/yairfalse/vartija/types"
)

var wildcardPolicy = []byte(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"*","Resource":"*"}]}`)
var readOnlyPolicy = []byte(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::data/*"}]}`)

type mockRuleStore struct {
	rules      []types.WhitelistRule
	fetchErr   error
	recorded   []string
	recordErr  error
	fetchCalls int
}

func (m *mockRuleStore) RulesByService(_ string) ([]types.WhitelistRule, error) {
	m.fetchCalls++
	return m.rules, m.fetchErr
}

func (m *mockRuleStore) RecordRuleMatch(id string) error {
	m.recorded = append(m.recorded, id)
	return m.recordErr
}

type mockFindingStore struct {
	saved   []types.Finding
	failOn  string
	nextID  int
	saveErr error
}

func (m *mockFindingStore) SaveFinding(f types.Finding) (types.Finding, error) {
	if m.saveErr != nil || (m.failOn != "" && f.Type == m.failOn) {
		err := m.saveErr
		if err == nil {
			err = errors.New("disk full")
		}
		return f, err
	}
	m.nextID++
	f.ID = "f-" + strconv.Itoa(m.nextID)
	m.saved = append(m.saved, f)
	return f, nil
}

func TestAnalyzeOneWithoutStores(t *testing.T) {
	o := New(analyzer.NewEngine())

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	assert.True(t, outcome.Result.Valid)
	assert.Equal(t, types.SeverityCritical, outcome.Result.OverallRisk)
	assert.Zero(t, outcome.Suppressed)
	assert.False(t, outcome.Saved)
}

func TestAnalyzeOneInvalidDocument(t *testing.T) {
	rules := &mockRuleStore{}
	o := New(analyzer.NewEngine()).WithRuleStore(rules)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "broken",
		Service:  "iam",
		Document: []byte(`{broken`),
	})

	assert.False(t, outcome.Result.Valid)
	// No suppression or persistence on invalid results.
	assert.Zero(t, rules.fetchCalls)
}

func TestSuppressionMarksAndRecords(t *testing.T) {
	rules := &mockRuleStore{rules: []types.WhitelistRule{{
		ID:          "r1",
		Service:     "iam",
		Severity:    types.SeverityCritical,
		Description: "Policy allows all actions across all services",
	}}}
	o := New(analyzer.NewEngine()).WithRuleStore(rules)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	require.True(t, outcome.Result.Valid)
	assert.Equal(t, 1, outcome.Suppressed)
	assert.Equal(t, []string{"r1"}, rules.recorded)

	suppressed := 0
	for _, f := range outcome.Result.Findings {
		if f.Suppressed {
			suppressed++
			assert.Equal(t, "wildcard_action", f.Type)
		}
	}
	assert.Equal(t, 1, suppressed)
}

func TestSuppressionSkipsPositives(t *testing.T) {
	rules := &mockRuleStore{rules: []types.WhitelistRule{{
		ID:          "r1",
		Service:     "s3",
		Severity:    types.SeverityLow,
		Description: "Statement grants read-only actions exclusively",
	}}}
	o := New(analyzer.NewEngine()).WithRuleStore(rules)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "reader",
		Service:  "s3",
		Document: readOnlyPolicy,
	})

	require.True(t, outcome.Result.Valid)
	assert.Zero(t, outcome.Suppressed)
	assert.Empty(t, rules.recorded)
}

func TestRuleFetchFailureSkipsSuppression(t *testing.T) {
	rules := &mockRuleStore{fetchErr: errors.New("store offline")}
	o := New(analyzer.NewEngine()).WithRuleStore(rules)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	// The analysis stands, nothing is suppressed.
	assert.True(t, outcome.Result.Valid)
	assert.Zero(t, outcome.Suppressed)
}

func TestRecordMatchFailureStillSuppresses(t *testing.T) {
	rules := &mockRuleStore{
		rules: []types.WhitelistRule{{
			ID:          "r1",
			Service:     "iam",
			Severity:    types.SeverityCritical,
			Description: "Policy allows all actions across all services",
		}},
		recordErr: errors.New("store offline"),
	}
	o := New(analyzer.NewEngine()).WithRuleStore(rules)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	assert.Equal(t, 1, outcome.Suppressed)
}

func TestPersistSkipsSuppressed(t *testing.T) {
	rules := &mockRuleStore{rules: []types.WhitelistRule{{
		ID:          "r1",
		Service:     "iam",
		Severity:    types.SeverityCritical,
		Description: "Policy allows all actions across all services",
	}}}
	findings := &mockFindingStore{}
	o := New(analyzer.NewEngine()).WithRuleStore(rules).WithFindingStore(findings)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	assert.True(t, outcome.Saved)
	for _, f := range findings.saved {
		assert.NotEqual(t, "wildcard_action", f.Type)
		assert.NotEmpty(t, f.ID)
	}
}

func TestSaveFailureIsAnalyzedButNotSaved(t *testing.T) {
	findings := &mockFindingStore{saveErr: errors.New("disk full")}
	o := New(analyzer.NewEngine()).WithFindingStore(findings)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
	})

	// Analyzed but not saved is a valid terminal state.
	assert.True(t, outcome.Result.Valid)
	assert.False(t, outcome.Saved)
	assert.Contains(t, outcome.SaveError, "disk full")
	assert.NotEmpty(t, outcome.Result.Findings)
}

func TestAnalyzeBatchPreservesOrderAndLength(t *testing.T) {
	o := New(analyzer.NewEngine())

	inputs := []PolicyInput{
		{Name: "a", Service: "iam", Document: wildcardPolicy},
		{Name: "b", Service: "iam", Document: []byte(`{broken`)},
		{Name: "c", Service: "s3", Document: readOnlyPolicy},
	}

	batch := o.AnalyzeBatch(context.Background(), inputs)

	require.Len(t, batch.Outcomes, len(inputs))
	assert.Equal(t, "a", batch.Outcomes[0].Name)
	assert.Equal(t, "b", batch.Outcomes[1].Name)
	assert.Equal(t, "c", batch.Outcomes[2].Name)

	assert.True(t, batch.Outcomes[0].Result.Valid)
	assert.False(t, batch.Outcomes[1].Result.Valid)
	assert.True(t, batch.Outcomes[2].Result.Valid)

	// Aggregate risk is the worst individual one.
	assert.Equal(t, types.SeverityCritical, batch.Risk)
	assert.Greater(t, batch.RiskScore, 0)
	assert.LessOrEqual(t, batch.RiskScore, 100)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	o := New(analyzer.NewEngine())

	batch := o.AnalyzeBatch(context.Background(), nil)

	assert.Empty(t, batch.Outcomes)
	assert.Equal(t, 0, batch.RiskScore)
	assert.Equal(t, types.SeverityLow, batch.Risk)
}

func TestAnalyzeBatchCancelled(t *testing.T) {
	o := New(analyzer.NewEngine())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := make([]PolicyInput, 16)
	for i := range inputs {
		inputs[i] = PolicyInput{Name: strconv.Itoa(i), Service: "iam", Document: readOnlyPolicy}
	}

	batch := o.AnalyzeBatch(ctx, inputs)

	// Length and order survive cancellation; unstarted work comes back
	// invalid with a cancellation error.
	require.Len(t, batch.Outcomes, len(inputs))
	for i, outcome := range batch.Outcomes {
		assert.Equal(t, strconv.Itoa(i), outcome.Name)
		if !outcome.Result.Valid {
			assert.Equal(t, "analysis cancelled", outcome.Result.Error)
		}
	}
}

func TestRulePackFindingsJoinPipeline(t *testing.T) {
	packs := rulepack.NewEngine()
	err := packs.LoadPack(context.Background(), "deny-prod-wildcards", `
package vartija

import rego.v1

wildcard_in_production if {
	input.options.environment == "production"
	some stmt in input.document.Statement
	stmt.Action == "*"
}

severity := "critical" if wildcard_in_production

description := "Rule pack: wildcard grant in production" if wildcard_in_production
`)
	require.NoError(t, err)

	o := New(analyzer.NewEngine()).WithRulePacks(packs)

	outcome := o.AnalyzeOne(context.Background(), PolicyInput{
		Name:     "admin",
		Service:  "iam",
		Document: wildcardPolicy,
		Options:  types.AnalysisOptions{Environment: types.EnvProduction},
	})

	require.True(t, outcome.Result.Valid)
	found := false
	for _, f := range outcome.Result.Findings {
		if f.Type == "rulepack:deny-prod-wildcards" {
			found = true
			assert.Equal(t, types.SeverityCritical, f.Severity)
		}
	}
	assert.True(t, found)
}
