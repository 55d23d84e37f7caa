package propagation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPlanner() *Planner {
	return NewPlanner(NewKeyNormalizer(DefaultConstraints()))
}

func TestPlanner_InstanceWithVolume(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-1", State: "running", Name: "web-01", Tags: map[string]string{"Name": "web-01"}}},
		[]Volume{{ID: "vol-1", InstanceID: "i-1"}},
		nil, nil,
	)

	entries := newTestPlanner().Plan(g.Roots)

	require.Equal(t, []TagPlanEntry{
		{ResourceID: "i-1", Kind: KindInstance, Key: "web-01", Value: "", Action: ActionWrite},
		{ResourceID: "vol-1", Kind: KindVolume, Key: "web-01", Value: "", Action: ActionWrite},
	}, entries)
}

func TestPlanner_UnnamedRootSkipsWholeSubtree(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-3", State: "running", Name: ""}},
		[]Volume{{ID: "vol-3", InstanceID: "i-3"}},
		[]Snapshot{{ID: "snap-3", VolumeID: "vol-3"}},
		nil,
	)

	entries := newTestPlanner().Plan(g.Roots)

	require.Len(t, entries, 3)
	for _, e := range entries {
		require.Equal(t, ActionSkipNoSourceName, e.Action)
		require.Empty(t, e.Key)
	}
}

func TestPlanner_NeverOverwritesExistingKey(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-4", State: "running", Name: "Name"}},
		[]Volume{{ID: "vol-4", InstanceID: "i-4", Tags: map[string]string{"Name": "legacy"}}},
		nil, nil,
	)

	entries := newTestPlanner().Plan(g.Roots)

	require.Len(t, entries, 2)
	require.Equal(t, ActionWrite, entries[0].Action)
	require.Equal(t, "vol-4", entries[1].ResourceID)
	require.Equal(t, ActionSkipAlreadyTagged, entries[1].Action)
}

func TestPlanner_ExistingKeyAnyValueSkips(t *testing.T) {
	for _, value := range []string{"", "v", "something else"} {
		root := &Node{ID: "i-1", Kind: KindInstance, Name: "web-01",
			Tags: map[string]string{"web-01": value}}
		entries := newTestPlanner().Plan([]*Node{root})
		require.Len(t, entries, 1)
		require.Equal(t, ActionSkipAlreadyTagged, entries[0].Action)
	}
}

func TestPlanner_Deterministic(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{
			{ID: "i-2", State: "running", Name: "beta"},
			{ID: "i-1", State: "running", Name: "alpha"},
		},
		[]Volume{
			{ID: "vol-2", InstanceID: "i-2"},
			{ID: "vol-1", InstanceID: "i-1"},
		},
		[]Snapshot{{ID: "snap-1", VolumeID: "vol-1"}},
		nil,
	)

	p := newTestPlanner()
	first := p.Plan(g.Roots)
	second := p.Plan(g.Roots)
	require.Equal(t, first, second)
}

func TestPlanner_IdempotentAfterApply(t *testing.T) {
	instances := []Instance{{ID: "i-1", State: "running", Name: "web-01", Tags: map[string]string{}}}
	volumes := []Volume{{ID: "vol-1", InstanceID: "i-1", Tags: map[string]string{}}}
	snapshots := []Snapshot{{ID: "snap-1", VolumeID: "vol-1", Tags: map[string]string{}}}

	build := func() *ComputeGraph {
		return NewComputeGraphBuilder().Build(instances, volumes, snapshots, nil)
	}
	p := newTestPlanner()

	first := p.Plan(build().Roots)
	tagsByID := map[string]map[string]string{
		"i-1": instances[0].Tags, "vol-1": volumes[0].Tags, "snap-1": snapshots[0].Tags,
	}
	writes := 0
	for _, e := range first {
		if e.Action == ActionWrite {
			tagsByID[e.ResourceID][e.Key] = e.Value
			writes++
		}
	}
	require.Equal(t, 3, writes)

	// Refreshed listings now carry the written tags; the replan is all skips.
	second := p.Plan(build().Roots)
	require.Len(t, second, len(first))
	for _, e := range second {
		require.Equal(t, ActionSkipAlreadyTagged, e.Action)
	}
}

func TestPlanner_PreOrderParentBeforeChild(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-1", State: "running", Name: "web"}},
		[]Volume{{ID: "vol-1", InstanceID: "i-1"}},
		[]Snapshot{{ID: "snap-1", VolumeID: "vol-1"}},
		[]Image{{ID: "ami-1", InstanceID: "i-1"}},
	)

	entries := newTestPlanner().Plan(g.Roots)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ResourceID
	}
	require.Equal(t, []string{"i-1", "vol-1", "snap-1", "ami-1"}, ids)
}

func TestPlanner_NameBackfill(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-1", State: "running", Name: "web-01", Tags: map[string]string{"Name": "web-01"}}},
		[]Volume{{ID: "vol-1", InstanceID: "i-1"}},
		nil, nil,
	)

	entries := newTestPlanner().WithNameBackfill(true).Plan(g.Roots)

	// Instance already carries Name; the untagged volume gets both the
	// identity key and the Name backfill.
	require.Equal(t, []TagPlanEntry{
		{ResourceID: "i-1", Kind: KindInstance, Key: "web-01", Value: "", Action: ActionWrite},
		{ResourceID: "vol-1", Kind: KindVolume, Key: "web-01", Value: "", Action: ActionWrite},
		{ResourceID: "vol-1", Kind: KindVolume, Key: "Name", Value: "web-01", Action: ActionWrite},
	}, entries)
}

func TestPlanner_DetachedNamedVolume(t *testing.T) {
	volumes := []Volume{{ID: "vol-detached", SizeGiB: 100, Tags: map[string]string{"Name": "archive-data"}}}
	snapshots := []Snapshot{{ID: "snap-arch", VolumeID: "vol-detached"}}

	// The lineage forest never reaches a detached volume.
	g := NewComputeGraphBuilder().Build(nil, volumes, snapshots, nil)
	require.Empty(t, newTestPlanner().Plan(g.Roots))

	// Its own Name tag is the source instead.
	entries := newTestPlanner().PlanDetached(volumes, snapshots, g.Claimed)
	require.Equal(t, []TagPlanEntry{
		{ResourceID: "vol-detached", Kind: KindVolume, Key: "archive-data", Value: "", Action: ActionWrite},
		{ResourceID: "snap-arch", Kind: KindSnapshot, Key: "archive-data", Value: "", Action: ActionWrite},
	}, entries)
}

func TestPlanner_DetachedSkipsClaimedAndUnnamed(t *testing.T) {
	instances := []Instance{{ID: "i-1", State: "running", Name: "web-01"}}
	volumes := []Volume{
		{ID: "vol-attached", InstanceID: "i-1"},
		{ID: "vol-bare"},
	}
	g := NewComputeGraphBuilder().Build(instances, volumes, nil, nil)

	entries := newTestPlanner().PlanDetached(volumes, nil, g.Claimed)

	// The attached volume belongs to the lineage plan; the unnamed
	// detached one has no source name to propagate.
	require.Len(t, entries, 1)
	require.Equal(t, "vol-bare", entries[0].ResourceID)
	require.Equal(t, ActionSkipNoSourceName, entries[0].Action)
}

func TestPlanner_StorageForest(t *testing.T) {
	g := NewStorageGraphBuilder().Build([]StorageResource{
		{ID: "fs-9", ARN: "arn:aws:fsx:us-east-1:123:file-system/fs-9", Kind: KindFsxFileSystem, Name: "ontap prod"},
		{ID: "fsvol-1", ARN: "arn:aws:fsx:us-east-1:123:volume/fsvol-1", Kind: KindFsxVolume, ParentID: "fs-9"},
	})

	entries := newTestPlanner().Plan(g.Roots)

	require.Len(t, entries, 2)
	require.Equal(t, "ontap-prod", entries[0].Key)
	require.Equal(t, "ontap-prod", entries[1].Key)
	require.Equal(t, "arn:aws:fsx:us-east-1:123:volume/fsvol-1", entries[1].ARN)
	for _, e := range entries {
		require.Equal(t, ActionWrite, e.Action)
		require.Equal(t, EmptyTagValue, e.Value)
	}
}
