package propagation

import (
	"fmt"
	"sort"
)

// StorageGraph is the ownership forest for EFS and FSx resources. Storage
// roots never expire; there is no terminated state to suppress them and
// orphan classification does not apply here.
type StorageGraph struct {
	Roots  []*Node
	Issues []Issue
}

// storageRootKinds are the kinds that anchor a storage subtree.
var storageRootKinds = map[Kind]bool{
	KindFileSystem:    true,
	KindFsxFileSystem: true,
	KindFsxFileCache:  true,
}

// storageChildKinds are the taggable sub-resources that attach by parent id.
var storageChildKinds = map[Kind]bool{
	KindMountTarget:  true,
	KindAccessPoint:  true,
	KindFsxVolume:    true,
	KindFsxStorageVM: true,
	KindFsxBackup:    true,
}

// StorageGraphBuilder builds storage ownership forests.
type StorageGraphBuilder struct{}

// NewStorageGraphBuilder creates a storage graph builder.
func NewStorageGraphBuilder() *StorageGraphBuilder {
	return &StorageGraphBuilder{}
}

// Build constructs the forest from a uniform listing of storage resources.
// Children with a parent id absent from the listing are recorded as
// dangling and left out of the forest; entries of unknown kind are
// ignored and reported.
func (b *StorageGraphBuilder) Build(resources []StorageResource) *StorageGraph {
	g := &StorageGraph{}

	byParent := make(map[string][]StorageResource)
	roots := make([]StorageResource, 0, len(resources))
	rootIDs := make(map[string]bool)

	for _, r := range resources {
		switch {
		case storageRootKinds[r.Kind]:
			roots = append(roots, r)
			rootIDs[r.ID] = true
		case storageChildKinds[r.Kind]:
			byParent[r.ParentID] = append(byParent[r.ParentID], r)
		default:
			g.Issues = append(g.Issues, Issue{
				Code:       IssueUnsupportedKind,
				ResourceID: r.ID,
				Message:    fmt.Sprintf("unrecognized storage kind %q ignored", r.Kind),
			})
		}
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	for _, root := range roots {
		name := root.Name
		if name == "" {
			// EFS/FSx resources are commonly unnamed; fall back
			// to the id so the family still gets a group key.
			name = root.ID
		}
		node := &Node{ID: root.ID, ARN: root.ARN, Kind: root.Kind, Name: name, Tags: root.Tags}
		children := byParent[root.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
		for _, c := range children {
			node.Children = append(node.Children, &Node{
				ID: c.ID, ARN: c.ARN, Kind: c.Kind, Name: name, Tags: c.Tags,
			})
		}
		g.Roots = append(g.Roots, node)
	}

	for parentID, children := range byParent {
		if rootIDs[parentID] {
			continue
		}
		for _, c := range children {
			g.Issues = append(g.Issues, Issue{
				Code:       IssueDanglingParent,
				ResourceID: c.ID,
				Message:    fmt.Sprintf("parent %s absent from listing", parentID),
			})
		}
	}
	sort.Slice(g.Issues, func(i, j int) bool { return g.Issues[i].ResourceID < g.Issues[j].ResourceID })

	return g
}
