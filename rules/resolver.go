package rules

import (
	"errors"
	"fmt"
)

// ErrUnknownFamily means the family ID is not in the code-defined table.
var ErrUnknownFamily = errors.New("unknown resource family")

// Resolver merges defaults, overrides and family bulk edits into effective
// rules. Pure given the store; safe for concurrent use.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over a rule store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// ResolvedRule pairs the effective rule with the default it came from.
type ResolvedRule struct {
	ResourceType string        `json:"resource_type"`
	Effective    EffectiveRule `json:"effective"`
	Default      EffectiveRule `json:"default"`
	Customized   bool          `json:"customized"`
}

// FamilyView is the grouped presentation of one family for an owner.
// Enabled is true iff at least one member resolves to enabled; Customized is
// true iff at least one member has an override row.
type FamilyView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Enabled    bool           `json:"enabled"`
	Customized bool           `json:"customized"`
	Members    []ResolvedRule `json:"members"`
}

// BulkPatch is the whitelisted subset of fields a family bulk update may
// touch.
type BulkPatch struct {
	Enabled                 *bool
	MinAgeDays              *float64
	ConfidenceThresholdDays *float64
	MinStoppedDays          *float64
}

func (p BulkPatch) isEmpty() bool {
	return p.Enabled == nil && p.MinAgeDays == nil &&
		p.ConfidenceThresholdDays == nil && p.MinStoppedDays == nil
}

// Resolve returns the effective rule for one (owner, resource type): the
// default with the owner's override sparsely overlaid. Requesting a type
// with no registered default fails; it never degrades to an empty rule.
func (r *Resolver) Resolve(owner, resourceType string) (EffectiveRule, error) {
	def, err := r.store.Default(resourceType)
	if err != nil {
		return EffectiveRule{}, err
	}

	override, ok, err := r.override(owner, resourceType)
	if err != nil {
		return EffectiveRule{}, err
	}
	if !ok {
		return def, nil
	}
	return merge(def, override), nil
}

// override looks up an owner's override row. An empty owner has no rows;
// the default applies as-is.
func (r *Resolver) override(owner, resourceType string) (Rule, bool, error) {
	if owner == "" {
		return Rule{}, false, nil
	}
	return r.store.Override(owner, resourceType)
}

// DefaultTypes returns every resource type with a registered default.
func (r *Resolver) DefaultTypes() []string {
	return r.store.DefaultTypes()
}

// ResolveAll resolves every registered resource type for an owner.
func (r *Resolver) ResolveAll(owner string) ([]ResolvedRule, error) {
	return r.resolveTypes(owner, r.store.DefaultTypes(), false)
}

// ResolveFamily resolves every member of a family for an owner. Members
// without a registered default are silently skipped.
func (r *Resolver) ResolveFamily(owner, familyID string) ([]ResolvedRule, error) {
	family, ok := FamilyByID(familyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, familyID)
	}
	return r.resolveTypes(owner, family.Members, true)
}

// FamilyViews returns the grouped presentation of all families for an owner.
func (r *Resolver) FamilyViews(owner string) ([]FamilyView, error) {
	var views []FamilyView
	for _, family := range Families() {
		members, err := r.resolveTypes(owner, family.Members, true)
		if err != nil {
			return nil, err
		}

		view := FamilyView{ID: family.ID, Name: family.Name, Members: members}
		for _, m := range members {
			if m.Effective.Enabled {
				view.Enabled = true
			}
			if m.Customized {
				view.Customized = true
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// BulkUpdateFamily applies a whitelisted patch to every member of a family
// as owner overrides. Members without a registered default are skipped and
// do not count toward the returned total.
func (r *Resolver) BulkUpdateFamily(owner, familyID string, patch BulkPatch) (int, error) {
	family, ok := FamilyByID(familyID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownFamily, familyID)
	}
	if patch.isEmpty() {
		return 0, fmt.Errorf("bulk patch is empty")
	}

	updated := 0
	for _, resourceType := range family.Members {
		if !r.store.HasDefault(resourceType) {
			continue
		}

		override, _, err := r.store.Override(owner, resourceType)
		if err != nil {
			return updated, err
		}
		override.Owner = owner
		override.ResourceType = resourceType
		applyBulkPatch(&override, patch)

		if err := r.store.SetOverride(override); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func applyBulkPatch(override *Rule, patch BulkPatch) {
	if patch.Enabled != nil {
		enabled := *patch.Enabled
		override.Enabled = &enabled
	}

	set := func(key string, value *float64) {
		if value == nil {
			return
		}
		if override.Thresholds == nil {
			override.Thresholds = make(map[string]float64)
		}
		override.Thresholds[key] = *value
	}
	set(ThresholdMinAgeDays, patch.MinAgeDays)
	set(ThresholdConfidenceDays, patch.ConfidenceThresholdDays)
	set(ThresholdMinStoppedDays, patch.MinStoppedDays)
}

func (r *Resolver) resolveTypes(owner string, resourceTypes []string, skipUnknown bool) ([]ResolvedRule, error) {
	var resolved []ResolvedRule
	for _, resourceType := range resourceTypes {
		if skipUnknown && !r.store.HasDefault(resourceType) {
			continue
		}

		def, err := r.store.Default(resourceType)
		if err != nil {
			return nil, err
		}

		override, customized, err := r.override(owner, resourceType)
		if err != nil {
			return nil, err
		}

		eff := def
		if customized {
			eff = merge(def, override)
		}
		resolved = append(resolved, ResolvedRule{
			ResourceType: resourceType,
			Effective:    eff,
			Default:      def,
			Customized:   customized,
		})
	}
	return resolved, nil
}
