package propagation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClassifier() *OrphanClassifier {
	return NewOrphanClassifier(NewKeyNormalizer(DefaultConstraints()))
}

func TestOrphanClassifier_TerminatedInstanceSnapshot(t *testing.T) {
	// i-2 is gone; its snapshot survives with a name hint in the
	// description and gets the identity key from it.
	snapshots := []Snapshot{{ID: "snap-2", VolumeID: "vol-2", Description: "db-02 nightly backup"}}

	entries := newTestClassifier().Classify(snapshots, nil, map[string]bool{}, nil)

	require.Equal(t, []TagPlanEntry{
		{ResourceID: "snap-2", Kind: KindSnapshot, Key: "db-02", Value: "", Action: ActionWrite},
	}, entries)
}

func TestOrphanClassifier_SkipsClaimedSnapshots(t *testing.T) {
	g := NewComputeGraphBuilder().Build(
		[]Instance{{ID: "i-1", State: "running", Name: "web"}},
		[]Volume{{ID: "vol-1", InstanceID: "i-1"}},
		[]Snapshot{{ID: "snap-1", VolumeID: "vol-1", Description: "weekly"}},
		nil,
	)

	entries := newTestClassifier().Classify(
		[]Snapshot{{ID: "snap-1", VolumeID: "vol-1", Description: "weekly"}},
		nil,
		map[string]bool{"i-1": true},
		g.Claimed,
	)
	require.Empty(t, entries)
}

func TestOrphanClassifier_PartitionWithComputeGraph(t *testing.T) {
	instances := []Instance{
		{ID: "i-1", State: "running", Name: "web"},
		{ID: "i-2", State: "terminated", Name: "db"},
	}
	volumes := []Volume{{ID: "vol-1", InstanceID: "i-1"}, {ID: "vol-2"}}
	snapshots := []Snapshot{
		{ID: "snap-1", VolumeID: "vol-1", Description: "live lineage"},
		{ID: "snap-2", VolumeID: "vol-2", Description: "db-02 backup"},
		{ID: "snap-3", VolumeID: "vol-gone", Description: "stray"},
	}

	g := NewComputeGraphBuilder().Build(instances, volumes, snapshots, nil)
	entries := newTestClassifier().Classify(snapshots, nil, map[string]bool{"i-1": true}, g.Claimed)

	classified := make(map[string]bool)
	for _, e := range entries {
		classified[e.ResourceID] = true
	}
	// Disjoint and exhaustive over the snapshot set.
	for _, s := range snapshots {
		require.NotEqual(t, g.Claimed(s.ID), classified[s.ID], "snapshot %s", s.ID)
	}
}

func TestOrphanClassifier_NoRecoverableNameSkips(t *testing.T) {
	snapshots := []Snapshot{{ID: "snap-9", Description: "snap-9 vol-0a1b2c3d"}}

	entries := newTestClassifier().Classify(snapshots, nil, nil, nil)

	require.Len(t, entries, 1)
	require.Equal(t, ActionSkipNoSourceName, entries[0].Action)
}

func TestOrphanClassifier_LiveInstanceReferenceDeferred(t *testing.T) {
	// Description names a live instance; the lineage pass owns it.
	snapshots := []Snapshot{{ID: "snap-5", Description: "Created by CreateImage(i-0abc12345678def90)"}}

	entries := newTestClassifier().Classify(snapshots, nil, map[string]bool{"i-0abc12345678def90": true}, nil)
	require.Empty(t, entries)
}

func TestOrphanClassifier_RecoversNameThroughImage(t *testing.T) {
	snapshots := []Snapshot{{ID: "snap-7", Description: "Created by CreateImage(i-0dead00000000beef) for ami-0123456789abcdef0"}}
	images := []Image{{
		ID:   "ami-0123456789abcdef0",
		Name: "golden-base-2024",
		Tags: map[string]string{},
	}}

	entries := newTestClassifier().Classify(snapshots, images, map[string]bool{}, nil)

	require.Len(t, entries, 2)
	require.Equal(t, "snap-7", entries[0].ResourceID)
	require.Equal(t, "golden-base-2024", entries[0].Key)
	require.Equal(t, ActionWrite, entries[0].Action)
	// The referenced AMI itself is untagged and gets the key too.
	require.Equal(t, "ami-0123456789abcdef0", entries[1].ResourceID)
	require.Equal(t, "golden-base-2024", entries[1].Key)
}

func TestOrphanClassifier_ImageNameTagPreferredOverAMIName(t *testing.T) {
	snapshots := []Snapshot{{ID: "snap-8", Description: "for ami-00000000000000001"}}
	images := []Image{{
		ID:   "ami-00000000000000001",
		Name: "raw-ami-name",
		Tags: map[string]string{"Name": "friendly name"},
	}}

	entries := newTestClassifier().Classify(snapshots, images, nil, nil)
	require.Equal(t, "friendly-name", entries[0].Key)
}

func TestOrphanClassifier_AlreadyKeyedOrphanSkips(t *testing.T) {
	snapshots := []Snapshot{{
		ID:          "snap-6",
		Description: "db-02 archive",
		Tags:        map[string]string{"db-02": ""},
	}}

	entries := newTestClassifier().Classify(snapshots, nil, nil, nil)
	require.Len(t, entries, 1)
	require.Equal(t, ActionSkipAlreadyTagged, entries[0].Action)
}

func TestOrphanClassifier_NamedSnapshotNotACandidate(t *testing.T) {
	snapshots := []Snapshot{{
		ID:          "snap-4",
		Description: "whatever",
		Tags:        map[string]string{"Name": "handled"},
	}}

	entries := newTestClassifier().Classify(snapshots, nil, nil, nil)
	require.Empty(t, entries)
}

func TestOrphanClassifier_OrphanImageBySourceInstance(t *testing.T) {
	images := []Image{{ID: "ami-5", InstanceID: "i-gone", Name: "retired-app"}}

	entries := newTestClassifier().Classify(nil, images, map[string]bool{}, nil)

	require.Len(t, entries, 1)
	require.Equal(t, "ami-5", entries[0].ResourceID)
	require.Equal(t, "retired-app", entries[0].Key)
}

func TestOrphanClassifier_NameBackfill(t *testing.T) {
	snapshots := []Snapshot{{ID: "snap-2", Description: "db-02 nightly"}}

	entries := newTestClassifier().WithNameBackfill(true).Classify(snapshots, nil, nil, nil)

	require.Equal(t, []TagPlanEntry{
		{ResourceID: "snap-2", Kind: KindSnapshot, Key: "db-02", Value: "", Action: ActionWrite},
		{ResourceID: "snap-2", Kind: KindSnapshot, Key: "Name", Value: "db-02", Action: ActionWrite},
	}, entries)
}

func TestOrphanClassifier_Deterministic(t *testing.T) {
	snapshots := []Snapshot{
		{ID: "snap-b", Description: "beta backup"},
		{ID: "snap-a", Description: "alpha backup"},
	}
	c := newTestClassifier()
	first := c.Classify(snapshots, nil, nil, nil)
	second := c.Classify(snapshots, nil, nil, nil)
	require.Equal(t, first, second)
	require.Equal(t, "snap-a", first[0].ResourceID)
}
