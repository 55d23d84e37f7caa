package propagation

// EmptyTagValue is the value written under the identity key. The key
// carries the workload name; the blank value keeps the tag compatible
// with grouping tools. Alternate policies swap this constant, not the
// planner's control flow.
const EmptyTagValue = ""

// NameTagKey is the conventional display-name tag.
const NameTagKey = "Name"

// Planner walks an ownership forest and emits the tag plan. It never
// mutates the forest and produces identical output for identical input.
type Planner struct {
	normalizer   *KeyNormalizer
	nameBackfill bool
}

// NewPlanner creates a planner using the given normalizer.
func NewPlanner(n *KeyNormalizer) *Planner {
	return &Planner{normalizer: n}
}

// WithNameBackfill makes the planner also emit Name=<source name> for
// resources missing a Name tag, in addition to the identity key.
func (p *Planner) WithNameBackfill(enabled bool) *Planner {
	p.nameBackfill = enabled
	return p
}

// Plan emits entries for every node of every root, parent before child.
// A root whose name cannot be normalized yields SKIP_NO_SOURCE_NAME for
// its entire subtree; the run continues with the next root. Existing
// tags under the computed key are never overwritten, whatever their
// value, and unrelated tags are never touched.
func (p *Planner) Plan(roots []*Node) []TagPlanEntry {
	entries := make([]TagPlanEntry, 0, len(roots)*2)
	for _, root := range roots {
		key, err := p.normalizer.Normalize(root.Name)
		if err != nil {
			entries = p.skipSubtree(entries, root)
			continue
		}
		entries = p.planNode(entries, root, key)
	}
	return entries
}

// PlanDetached plans entries for volumes with no instance attachment
// and for their snapshots. A detached volume has no instance to inherit
// from, so its own Name tag is the source; snapshots inherit the
// volume's name. Resources already claimed by a lineage root are left
// alone, keeping the output disjoint from Plan's.
func (p *Planner) PlanDetached(volumes []Volume, snapshots []Snapshot, claimed func(string) bool) []TagPlanEntry {
	snapshotsByVolume := make(map[string][]Snapshot)
	for _, s := range snapshots {
		snapshotsByVolume[s.VolumeID] = append(snapshotsByVolume[s.VolumeID], s)
	}

	var entries []TagPlanEntry
	for _, vol := range sortVolumes(volumes) {
		if vol.InstanceID != "" || (claimed != nil && claimed(vol.ID)) {
			continue
		}
		node := &Node{ID: vol.ID, Kind: KindVolume, Name: vol.Tags[NameTagKey], Tags: vol.Tags}
		for _, snap := range sortSnapshots(snapshotsByVolume[vol.ID]) {
			if claimed != nil && claimed(snap.ID) {
				continue
			}
			node.Children = append(node.Children, &Node{
				ID: snap.ID, Kind: KindSnapshot, Name: node.Name, Tags: snap.Tags,
			})
		}
		key, err := p.normalizer.Normalize(node.Name)
		if err != nil {
			entries = p.skipSubtree(entries, node)
			continue
		}
		entries = p.planNode(entries, node, key)
	}
	return entries
}

func (p *Planner) planNode(entries []TagPlanEntry, node *Node, key string) []TagPlanEntry {
	entry := TagPlanEntry{
		ResourceID: node.ID,
		ARN:        node.ARN,
		Kind:       node.Kind,
		Key:        key,
		Value:      EmptyTagValue,
	}
	if _, tagged := node.Tags[key]; tagged {
		entry.Action = ActionSkipAlreadyTagged
	} else {
		entry.Action = ActionWrite
	}
	entries = append(entries, entry)

	if p.nameBackfill && node.Name != "" {
		if _, has := node.Tags[NameTagKey]; !has {
			entries = append(entries, TagPlanEntry{
				ResourceID: node.ID,
				ARN:        node.ARN,
				Kind:       node.Kind,
				Key:        NameTagKey,
				Value:      node.Name,
				Action:     ActionWrite,
			})
		}
	}

	for _, child := range node.Children {
		entries = p.planNode(entries, child, key)
	}
	return entries
}

func (p *Planner) skipSubtree(entries []TagPlanEntry, node *Node) []TagPlanEntry {
	entries = append(entries, TagPlanEntry{
		ResourceID: node.ID,
		ARN:        node.ARN,
		Kind:       node.Kind,
		Action:     ActionSkipNoSourceName,
	})
	for _, child := range node.Children {
		entries = p.skipSubtree(entries, child)
	}
	return entries
}
