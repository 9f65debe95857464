package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yairfalse/scrimp/storage"
)

// ErrUnknownResourceType means no default rule is registered for the type.
// This is a programmer/config error, never silently absorbed.
var ErrUnknownResourceType = errors.New("unknown resource type")

// Store holds the seeded defaults (immutable after construction) and the
// per-owner overrides persisted in bbolt.
type Store struct {
	db       *storage.Store
	defaults map[string]EffectiveRule
}

// NewStore seeds defaults and wires the override bucket. The defaults map is
// deep-copied; later mutation of the argument does not leak in.
func NewStore(db *storage.Store, defaults map[string]EffectiveRule) *Store {
	seeded := make(map[string]EffectiveRule, len(defaults))
	for resourceType, def := range defaults {
		def.ResourceType = resourceType
		seeded[resourceType] = def.Clone()
	}
	return &Store{db: db, defaults: seeded}
}

// Default returns a copy of the seeded default for a resource type.
func (s *Store) Default(resourceType string) (EffectiveRule, error) {
	def, ok := s.defaults[resourceType]
	if !ok {
		return EffectiveRule{}, fmt.Errorf("%w: %s", ErrUnknownResourceType, resourceType)
	}
	return def.Clone(), nil
}

// HasDefault reports whether a default rule is registered.
func (s *Store) HasDefault(resourceType string) bool {
	_, ok := s.defaults[resourceType]
	return ok
}

// DefaultTypes returns all registered resource types, sorted.
func (s *Store) DefaultTypes() []string {
	out := make([]string, 0, len(s.defaults))
	for resourceType := range s.defaults {
		out = append(out, resourceType)
	}
	sort.Strings(out)
	return out
}

// Override returns the owner's override row for a resource type, if any.
func (s *Store) Override(owner, resourceType string) (Rule, bool, error) {
	key, err := overrideKey(owner, resourceType)
	if err != nil {
		return Rule{}, false, err
	}

	value, ok, err := s.db.Get(storage.BucketRuleOverrides, key)
	if err != nil || !ok {
		return Rule{}, false, err
	}

	var rule Rule
	if err := json.Unmarshal(value, &rule); err != nil {
		return Rule{}, false, fmt.Errorf("decode override %s: %w", key, err)
	}
	return rule, true, nil
}

// SetOverride upserts an override row. At most one row exists per
// (owner, resource type); last writer wins.
func (s *Store) SetOverride(rule Rule) error {
	if !s.HasDefault(rule.ResourceType) {
		return fmt.Errorf("%w: %s", ErrUnknownResourceType, rule.ResourceType)
	}
	key, err := overrideKey(rule.Owner, rule.ResourceType)
	if err != nil {
		return err
	}

	value, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	return s.db.Put(storage.BucketRuleOverrides, key, value)
}

// DeleteOverride removes a single override row. Absent rows are not an error.
func (s *Store) DeleteOverride(owner, resourceType string) error {
	key, err := overrideKey(owner, resourceType)
	if err != nil {
		return err
	}
	return s.db.Delete(storage.BucketRuleOverrides, key)
}

// ResetOverrides deletes an owner's overrides, optionally scoped to one
// resource type. The delete runs in a single transaction, so the caller sees
// either a full reset or no change. Returns the number of rows removed.
func (s *Store) ResetOverrides(owner, resourceType string) (int, error) {
	if err := validateOwner(owner); err != nil {
		return 0, err
	}
	if resourceType != "" {
		key, err := overrideKey(owner, resourceType)
		if err != nil {
			return 0, err
		}
		existed, err := s.db.DeleteExisting(storage.BucketRuleOverrides, key)
		if err != nil || !existed {
			return 0, err
		}
		return 1, nil
	}
	return s.db.DeletePrefix(storage.BucketRuleOverrides, []byte(owner+"/"))
}

// ListOverrides returns all of an owner's override rows.
func (s *Store) ListOverrides(owner string) ([]Rule, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	var overrides []Rule
	prefix := owner + "/"
	err := s.db.ForEach(storage.BucketRuleOverrides, func(key, value []byte) error {
		if !strings.HasPrefix(string(key), prefix) {
			return nil
		}
		var rule Rule
		if err := json.Unmarshal(value, &rule); err != nil {
			return fmt.Errorf("decode override %s: %w", key, err)
		}
		overrides = append(overrides, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func overrideKey(owner, resourceType string) ([]byte, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if resourceType == "" {
		return nil, fmt.Errorf("resource type is required")
	}
	return []byte(owner + "/" + resourceType), nil
}

func validateOwner(owner string) error {
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.Contains(owner, "/") {
		return fmt.Errorf("owner must not contain '/': %q", owner)
	}
	return nil
}
