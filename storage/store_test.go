package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vartija/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndGetFinding(t *testing.T) {
	store := newTestStore(t)

	saved, err := store.SaveFinding(types.Finding{
		Type:        "wildcard_action",
		Severity:    types.SeverityCritical,
		Description: "Policy allows all actions across all services",
		Service:     "iam",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	loaded, err := store.GetFinding(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestGetFindingNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFinding("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRuleAssignsID(t *testing.T) {
	store := newTestStore(t)

	rule, err := store.SaveRule(types.WhitelistRule{
		Service:  "iam",
		Severity: types.SeverityHigh,
		Pattern:  `passing\s+roles`,
		Reason:   "vetted deploy role",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
}

func TestRulesByService(t *testing.T) {
	store := newTestStore(t)

	for _, svc := range []string{"iam", "iam", "s3"} {
		_, err := store.SaveRule(types.WhitelistRule{Service: svc, Severity: types.SeverityLow})
		require.NoError(t, err)
	}

	iamRules, err := store.RulesByService("iam")
	require.NoError(t, err)
	assert.Len(t, iamRules, 2)

	s3Rules, err := store.RulesByService("s3")
	require.NoError(t, err)
	assert.Len(t, s3Rules, 1)

	none, err := store.RulesByService("lambda")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAllRules(t *testing.T) {
	store := newTestStore(t)

	for _, svc := range []string{"s3", "iam", "lambda"} {
		_, err := store.SaveRule(types.WhitelistRule{Service: svc, Severity: types.SeverityLow})
		require.NoError(t, err)
	}

	rules, err := store.AllRules()
	require.NoError(t, err)
	require.Len(t, rules, 3)
	// Service order from the index.
	assert.Equal(t, "iam", rules[0].Service)
	assert.Equal(t, "lambda", rules[1].Service)
	assert.Equal(t, "s3", rules[2].Service)
}

func TestRecordRuleMatch(t *testing.T) {
	store := newTestStore(t)

	rule, err := store.SaveRule(types.WhitelistRule{Service: "iam", Severity: types.SeverityHigh})
	require.NoError(t, err)

	require.NoError(t, store.RecordRuleMatch(rule.ID))
	require.NoError(t, store.RecordRuleMatch(rule.ID))

	rules, err := store.RulesByService("iam")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(2), rules[0].MatchCount)
	assert.False(t, rules[0].LastMatchedAt.IsZero())
}

func TestRecordRuleMatchMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordRuleMatch("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRuleMatchConcurrent(t *testing.T) {
	store := newTestStore(t)

	rule, err := store.SaveRule(types.WhitelistRule{Service: "iam", Severity: types.SeverityHigh})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RecordRuleMatch(rule.ID)
		}()
	}
	wg.Wait()

	rules, err := store.RulesByService("iam")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	// Increments happen inside the write transaction, so none are lost.
	assert.Equal(t, int64(workers), rules[0].MatchCount)
}

func TestUpdateRules(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveRule(types.WhitelistRule{Service: "iam", Severity: types.SeverityHigh, Reason: "old"})
	require.NoError(t, err)
	_, err = store.SaveRule(types.WhitelistRule{Service: "iam", Severity: types.SeverityLow, Reason: "old"})
	require.NoError(t, err)

	updated, err := store.UpdateRules("iam", types.SeverityHigh, func(r *types.WhitelistRule) {
		r.Reason = "reviewed"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rules, err := store.RulesByService("iam")
	require.NoError(t, err)
	for _, r := range rules {
		if r.Severity == types.SeverityHigh {
			assert.Equal(t, "reviewed", r.Reason)
		} else {
			assert.Equal(t, "old", r.Reason)
		}
	}
}

func TestDeleteRule(t *testing.T) {
	store := newTestStore(t)

	rule, err := store.SaveRule(types.WhitelistRule{Service: "iam", Severity: types.SeverityLow})
	require.NoError(t, err)

	require.NoError(t, store.DeleteRule(rule.ID))

	rules, err := store.RulesByService("iam")
	require.NoError(t, err)
	assert.Empty(t, rules)

	assert.ErrorIs(t, store.DeleteRule(rule.ID), ErrNotFound)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	_, err = store.SaveRule(types.WhitelistRule{Service: "s3", Severity: types.SeverityMedium, Reason: "known churn"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	rules, err := reopened.RulesByService("s3")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "known churn", rules[0].Reason)
}
