package propagation

import (
	"fmt"
	"sort"
	"strings"
)

// ComputeGraph is the ownership forest for one region's EC2 lineage:
// instance -> volumes -> snapshots, instance -> AMIs -> backing snapshots.
type ComputeGraph struct {
	Roots  []*Node
	Issues []Issue

	claimed map[string]bool
}

// Claimed reports whether a resource id was attached to some root during
// the build. The orphan classifier uses this to keep its candidate set
// disjoint from the reachable set.
func (g *ComputeGraph) Claimed(id string) bool {
	return g.claimed[id]
}

// ComputeGraphBuilder builds compute ownership forests from listings.
type ComputeGraphBuilder struct {
	correlateByDescription bool
}

// NewComputeGraphBuilder creates a builder with description correlation
// enabled: an image with no recorded source instance is attributed to an
// instance whose id appears in a backing snapshot's description.
func NewComputeGraphBuilder() *ComputeGraphBuilder {
	return &ComputeGraphBuilder{correlateByDescription: true}
}

// WithDescriptionCorrelation toggles the image provenance fallback.
func (b *ComputeGraphBuilder) WithDescriptionCorrelation(enabled bool) *ComputeGraphBuilder {
	b.correlateByDescription = enabled
	return b
}

// Build constructs the forest for a single region. Terminated instances
// produce no root; their derived snapshots remain unclaimed and fall to
// the orphan classifier. A resource reachable from two roots attaches to
// the first root in id order and only that one (first-claim).
func (b *ComputeGraphBuilder) Build(instances []Instance, volumes []Volume, snapshots []Snapshot, images []Image) *ComputeGraph {
	g := &ComputeGraph{claimed: make(map[string]bool)}

	volumeByID := make(map[string]Volume, len(volumes))
	volumesByInstance := make(map[string][]Volume)
	for _, v := range volumes {
		volumeByID[v.ID] = v
		if v.InstanceID != "" {
			volumesByInstance[v.InstanceID] = append(volumesByInstance[v.InstanceID], v)
		}
	}
	// Instance block-device mappings can name volumes whose attachment
	// record is missing from the volume listing; both sources count.
	for _, inst := range instances {
		for _, volID := range inst.VolumeIDs {
			vol, ok := volumeByID[volID]
			if !ok {
				continue
			}
			if vol.InstanceID == "" {
				vol.InstanceID = inst.ID
				volumesByInstance[inst.ID] = append(volumesByInstance[inst.ID], vol)
			}
		}
	}
	snapshotsByVolume := make(map[string][]Snapshot)
	snapshotByID := make(map[string]Snapshot)
	for _, s := range snapshots {
		snapshotsByVolume[s.VolumeID] = append(snapshotsByVolume[s.VolumeID], s)
		snapshotByID[s.ID] = s
	}
	imagesByInstance := make(map[string][]Image)
	for _, img := range images {
		owner := img.InstanceID
		if owner == "" && b.correlateByDescription {
			owner = b.correlateImage(img, snapshotByID, instances)
		}
		if owner != "" {
			imagesByInstance[owner] = append(imagesByInstance[owner], img)
		}
	}

	ordered := make([]Instance, len(instances))
	copy(ordered, instances)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, inst := range ordered {
		if inst.State == "terminated" {
			continue
		}
		root := &Node{ID: inst.ID, Kind: KindInstance, Name: inst.Name, Tags: inst.Tags}
		g.claimed[inst.ID] = true

		for _, vol := range sortVolumes(volumesByInstance[inst.ID]) {
			if !b.claim(g, vol.ID, inst.ID) {
				continue
			}
			volNode := &Node{ID: vol.ID, Kind: KindVolume, Name: inst.Name, Tags: vol.Tags}
			for _, snap := range sortSnapshots(snapshotsByVolume[vol.ID]) {
				if !b.claim(g, snap.ID, vol.ID) {
					continue
				}
				volNode.Children = append(volNode.Children, &Node{
					ID: snap.ID, Kind: KindSnapshot, Name: inst.Name, Tags: snap.Tags,
				})
			}
			root.Children = append(root.Children, volNode)
		}

		for _, img := range sortImages(imagesByInstance[inst.ID]) {
			if !b.claim(g, img.ID, inst.ID) {
				continue
			}
			imgNode := &Node{ID: img.ID, Kind: KindImage, Name: inst.Name, Tags: img.Tags}
			for _, snapID := range sortedStrings(img.SnapshotIDs) {
				snap, ok := snapshotByID[snapID]
				if !ok {
					g.Issues = append(g.Issues, Issue{
						Code:       IssueDanglingParent,
						ResourceID: snapID,
						Message:    fmt.Sprintf("image %s references snapshot absent from listing", img.ID),
					})
					continue
				}
				if !b.claim(g, snap.ID, img.ID) {
					continue
				}
				imgNode.Children = append(imgNode.Children, &Node{
					ID: snap.ID, Kind: KindSnapshot, Name: inst.Name, Tags: snap.Tags,
				})
			}
			root.Children = append(root.Children, imgNode)
		}

		g.Roots = append(g.Roots, root)
	}

	return g
}

// claim marks id as owned. Returns false when a prior root already owns
// it, recording the duplicate derivation reference.
func (b *ComputeGraphBuilder) claim(g *ComputeGraph, id, parent string) bool {
	if g.claimed[id] {
		g.Issues = append(g.Issues, Issue{
			Code:       IssueDuplicateClaim,
			ResourceID: id,
			Message:    fmt.Sprintf("already claimed by an earlier root, not re-attached under %s", parent),
		})
		return false
	}
	g.claimed[id] = true
	return true
}

func (b *ComputeGraphBuilder) correlateImage(img Image, snapshotByID map[string]Snapshot, instances []Instance) string {
	for _, snapID := range img.SnapshotIDs {
		snap, ok := snapshotByID[snapID]
		if !ok {
			continue
		}
		for _, inst := range instances {
			if strings.Contains(snap.Description, inst.ID) {
				return inst.ID
			}
		}
	}
	return ""
}

func sortVolumes(vs []Volume) []Volume {
	out := make([]Volume, len(vs))
	copy(out, vs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortSnapshots(ss []Snapshot) []Snapshot {
	out := make([]Snapshot, len(ss))
	copy(out, ss)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortImages(is []Image) []Image {
	out := make([]Image, len(is))
	copy(out, is)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
