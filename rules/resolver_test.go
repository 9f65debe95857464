package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/scrimp/storage"
)

func newTestResolver(t *testing.T) (*Resolver, *Store) {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db, BuiltinDefaults())
	return NewResolver(store), store
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func TestResolveDefaultsOnly(t *testing.T) {
	resolver, _ := newTestResolver(t)

	eff, err := resolver.Resolve("alice", TypeEBSVolumeUnattached)
	require.NoError(t, err)

	assert.True(t, eff.Enabled)
	assert.Equal(t, 7.0, eff.Threshold(ThresholdMinAgeDays))
	assert.Equal(t, 30.0, eff.Threshold(ThresholdConfidenceDays))
}

func TestResolveSparseMerge(t *testing.T) {
	resolver, store := newTestResolver(t)

	// Override touches only min_age_days; everything else keeps defaults.
	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeUnattached,
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 21},
	}))

	eff, err := resolver.Resolve("alice", TypeEBSVolumeUnattached)
	require.NoError(t, err)

	assert.Equal(t, 21.0, eff.Threshold(ThresholdMinAgeDays), "overridden key")
	assert.Equal(t, 30.0, eff.Threshold(ThresholdConfidenceDays), "untouched key keeps default")
	assert.True(t, eff.Enabled, "enabled not present in override keeps default")

	// Other owners are unaffected.
	other, err := resolver.Resolve("bob", TypeEBSVolumeUnattached)
	require.NoError(t, err)
	assert.Equal(t, 7.0, other.Threshold(ThresholdMinAgeDays))
}

func TestResolveEnabledOverlay(t *testing.T) {
	resolver, store := newTestResolver(t)

	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEC2InstanceIdle,
		Enabled:      boolPtr(false),
	}))

	eff, err := resolver.Resolve("alice", TypeEC2InstanceIdle)
	require.NoError(t, err)
	assert.False(t, eff.Enabled)
	assert.Equal(t, 5.0, eff.Threshold(ThresholdCPUPct), "thresholds untouched")
}

func TestResolveEmptyOwnerUsesDefaults(t *testing.T) {
	resolver, store := newTestResolver(t)

	// Another owner's override must not leak into the ownerless path.
	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeUnattached,
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 21},
	}))

	eff, err := resolver.Resolve("", TypeEBSVolumeUnattached)
	require.NoError(t, err)
	assert.True(t, eff.Enabled)
	assert.Equal(t, 7.0, eff.Threshold(ThresholdMinAgeDays))

	resolved, err := resolver.ResolveAll("")
	require.NoError(t, err)
	require.Len(t, resolved, 10)
	for _, rr := range resolved {
		assert.False(t, rr.Customized, rr.ResourceType)
	}

	views, err := resolver.FamilyViews("")
	require.NoError(t, err)
	for _, v := range views {
		assert.False(t, v.Customized, v.ID)
	}
}

func TestResolveUnknownResourceType(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve("alice", "floppy_disk_unused")
	require.ErrorIs(t, err, ErrUnknownResourceType)
}

func TestResetIdempotence(t *testing.T) {
	resolver, store := newTestResolver(t)

	before, err := resolver.Resolve("alice", TypeSnapshotOrphaned)
	require.NoError(t, err)

	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeSnapshotOrphaned,
		Enabled:      boolPtr(false),
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 1},
	}))
	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeIdle,
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 2},
	}))

	deleted, err := store.ResetOverrides("alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	after, err := resolver.Resolve("alice", TypeSnapshotOrphaned)
	require.NoError(t, err)
	assert.Equal(t, before, after, "resolve after reset equals resolve before any override")

	overrides, err := store.ListOverrides("alice")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestResetScopedToOneType(t *testing.T) {
	resolver, store := newTestResolver(t)

	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeSnapshotOrphaned,
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 1},
	}))
	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeIdle,
		Thresholds:   map[string]float64{ThresholdMinAgeDays: 2},
	}))

	_, err := store.ResetOverrides("alice", TypeSnapshotOrphaned)
	require.NoError(t, err)

	eff, err := resolver.Resolve("alice", TypeSnapshotOrphaned)
	require.NoError(t, err)
	assert.Equal(t, 30.0, eff.Threshold(ThresholdMinAgeDays), "scoped type reverted")

	eff, err = resolver.Resolve("alice", TypeEBSVolumeIdle)
	require.NoError(t, err)
	assert.Equal(t, 2.0, eff.Threshold(ThresholdMinAgeDays), "other type untouched")
}

func TestBulkUpdateFamily(t *testing.T) {
	resolver, _ := newTestResolver(t)

	// The network family has three members.
	updated, err := resolver.BulkUpdateFamily("alice", "network", BulkPatch{
		Enabled: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	resolved, err := resolver.ResolveFamily("alice", "network")
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	for _, rr := range resolved {
		assert.False(t, rr.Effective.Enabled, rr.ResourceType)
		assert.True(t, rr.Customized, rr.ResourceType)
	}
}

func TestBulkUpdateFamilyThresholds(t *testing.T) {
	resolver, _ := newTestResolver(t)

	updated, err := resolver.BulkUpdateFamily("alice", "ec2_instances", BulkPatch{
		MinAgeDays:     floatPtr(30),
		MinStoppedDays: floatPtr(14),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	eff, err := resolver.Resolve("alice", TypeEC2InstanceStopped)
	require.NoError(t, err)
	assert.Equal(t, 30.0, eff.Threshold(ThresholdMinAgeDays))
	assert.Equal(t, 14.0, eff.Threshold(ThresholdMinStoppedDays))
	assert.Equal(t, 30.0, eff.Threshold(ThresholdConfidenceDays), "non-whitelisted key untouched")
}

func TestBulkUpdateFamilySkipsUnregisteredMembers(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Seed defaults missing one network member.
	defaults := BuiltinDefaults()
	delete(defaults, TypeNATGatewayIdle)
	resolver := NewResolver(NewStore(db, defaults))

	updated, err := resolver.BulkUpdateFamily("alice", "network", BulkPatch{Enabled: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated, "member without default does not count")

	resolved, err := resolver.ResolveFamily("alice", "network")
	require.NoError(t, err)
	assert.Len(t, resolved, 2, "unregistered member silently skipped")
}

func TestBulkUpdateUnknownFamily(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.BulkUpdateFamily("alice", "mainframes", BulkPatch{Enabled: boolPtr(true)})
	require.ErrorIs(t, err, ErrUnknownFamily)
}

func TestBulkUpdateEmptyPatch(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.BulkUpdateFamily("alice", "network", BulkPatch{})
	assert.Error(t, err)
}

func TestFamilyViews(t *testing.T) {
	resolver, store := newTestResolver(t)

	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeUnattached,
		Enabled:      boolPtr(false),
	}))

	views, err := resolver.FamilyViews("alice")
	require.NoError(t, err)
	require.NotEmpty(t, views)

	byID := map[string]FamilyView{}
	for _, v := range views {
		byID[v.ID] = v
	}

	ebs := byID["ebs_volumes"]
	assert.True(t, ebs.Enabled, "one member still enabled")
	assert.True(t, ebs.Customized, "one member has an override row")

	network := byID["network"]
	assert.True(t, network.Enabled)
	assert.False(t, network.Customized)

	// Disable the remaining EBS member: family toggles off.
	require.NoError(t, store.SetOverride(Rule{
		Owner:        "alice",
		ResourceType: TypeEBSVolumeIdle,
		Enabled:      boolPtr(false),
	}))
	views, err = resolver.FamilyViews("alice")
	require.NoError(t, err)
	for _, v := range views {
		if v.ID == "ebs_volumes" {
			assert.False(t, v.Enabled)
		}
	}
}

func TestApplyTweaks(t *testing.T) {
	defaults := ApplyTweaks(BuiltinDefaults(), map[string]DefaultTweak{
		TypeEBSVolumeUnattached: {
			Thresholds: map[string]float64{ThresholdMinAgeDays: 3},
		},
		"m365_mailbox_inactive": {
			Thresholds: map[string]float64{ThresholdMinAgeDays: 90},
		},
	})

	assert.Equal(t, 3.0, defaults[TypeEBSVolumeUnattached].Thresholds[ThresholdMinAgeDays])
	assert.Equal(t, 30.0, defaults[TypeEBSVolumeUnattached].Thresholds[ThresholdConfidenceDays])

	added, ok := defaults["m365_mailbox_inactive"]
	require.True(t, ok, "tweak for unknown type registers a new default")
	assert.True(t, added.Enabled)
	assert.Equal(t, 90.0, added.Thresholds[ThresholdMinAgeDays])
}
