// Package storage persists findings and whitelist rules in bbolt with
// an in-memory btree index for rule lookups by service. It is the
// persistence collaborator the engine consumes; analysis itself never
// touches it.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/vartija/types"
)

// Bucket names in bbolt
var (
	bucketFindings = []byte("findings")
	bucketRules    = []byte("whitelist_rules")
)

// ErrNotFound is returned when a rule or finding does not exist.
var ErrNotFound = errors.New("not found")

// Store is the bbolt-backed persistence layer.
type Store struct {
	mu sync.RWMutex

	// In-memory index of rules keyed by service/id
	index *btree.BTreeG[*ruleEntry]

	db  *bbolt.DB
	dir string
}

// ruleEntry orders rules by service then ID for range scans.
type ruleEntry struct {
	Service string
	ID      string
	Rule    types.WhitelistRule
}

func ruleLess(a, b *ruleEntry) bool {
	if a.Service != b.Service {
		return a.Service < b.Service
	}
	return a.ID < b.ID
}

// NewStore opens or creates a store in the given directory.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "vartija.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketFindings, bucketRules} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{
		index: btree.NewG[*ruleEntry](32, ruleLess),
		db:    db,
		dir:   dir,
	}

	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebuildIndex loads all rules from disk into the btree.
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRules).ForEach(func(k, v []byte) error {
			var rule types.WhitelistRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return fmt.Errorf("corrupt rule %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(&ruleEntry{Service: rule.Service, ID: rule.ID, Rule: rule})
			return nil
		})
	})
}

// SaveFinding persists a finding, assigning an ID when missing.
func (s *Store) SaveFinding(finding types.Finding) (types.Finding, error) {
	if finding.ID == "" {
		finding.ID = uuid.NewString()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(finding)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFindings).Put([]byte(finding.ID), value)
	})
	if err != nil {
		return finding, fmt.Errorf("failed to save finding: %w", err)
	}
	return finding, nil
}

// GetFinding loads a finding by ID.
func (s *Store) GetFinding(id string) (types.Finding, error) {
	var finding types.Finding
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketFindings).Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, &finding)
	})
	return finding, err
}

// SaveRule persists a whitelist rule and indexes it, assigning an ID
// when missing.
func (s *Store) SaveRule(rule types.WhitelistRule) (types.WhitelistRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRules).Put([]byte(rule.ID), value)
	})
	if err != nil {
		return rule, fmt.Errorf("failed to save rule: %w", err)
	}

	s.mu.Lock()
	s.index.ReplaceOrInsert(&ruleEntry{Service: rule.Service, ID: rule.ID, Rule: rule})
	s.mu.Unlock()

	return rule, nil
}

// RulesByService returns the candidate rules for one service from the
// in-memory index.
func (s *Store) RulesByService(service string) ([]types.WhitelistRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []types.WhitelistRule
	pivot := &ruleEntry{Service: service}
	s.index.AscendGreaterOrEqual(pivot, func(entry *ruleEntry) bool {
		if entry.Service != service {
			return false
		}
		rules = append(rules, entry.Rule)
		return true
	})
	return rules, nil
}

// AllRules returns every stored rule in service order.
func (s *Store) AllRules() ([]types.WhitelistRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []types.WhitelistRule
	s.index.Ascend(func(entry *ruleEntry) bool {
		rules = append(rules, entry.Rule)
		return true
	})
	return rules, nil
}

// RecordRuleMatch atomically increments a rule's match count and sets
// its last-matched time. The increment happens inside the write
// transaction so concurrent suppression checks never lose counts;
// lastMatchedAt is last-write-wins.
func (s *Store) RecordRuleMatch(id string) error {
	var updated types.WhitelistRule

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRules)
		value := bucket.Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(value, &updated); err != nil {
			return fmt.Errorf("corrupt rule %s: %w", id, err)
		}

		updated.MatchCount++
		updated.LastMatchedAt = time.Now()

		newValue, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), newValue)
	})
	if err != nil {
		return fmt.Errorf("failed to record rule match: %w", err)
	}

	s.mu.Lock()
	s.index.ReplaceOrInsert(&ruleEntry{Service: updated.Service, ID: updated.ID, Rule: updated})
	s.mu.Unlock()

	return nil
}

// UpdateRules applies fn to every rule for a service matching the given
// severity, persisting the changes. Used by admin bulk edits.
func (s *Store) UpdateRules(service string, severity types.Severity, fn func(*types.WhitelistRule)) (int, error) {
	rules, err := s.RulesByService(service)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rule := range rules {
		if rule.Severity != severity {
			continue
		}
		fn(&rule)
		if _, err := s.SaveRule(rule); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// DeleteRule removes a rule from disk and the index.
func (s *Store) DeleteRule(id string) error {
	var service string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRules)
		value := bucket.Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}
		var rule types.WhitelistRule
		if err := json.Unmarshal(value, &rule); err != nil {
			return fmt.Errorf("corrupt rule %s: %w", id, err)
		}
		service = rule.Service
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.index.Delete(&ruleEntry{Service: service, ID: id})
	s.mu.Unlock()

	return nil
}
