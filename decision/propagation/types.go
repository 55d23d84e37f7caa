// Package propagation implements the tag-propagation decision engine.
// It builds ownership graphs from already-fetched AWS listings, plans the
// identity tag every resource should carry, and classifies orphaned
// snapshots and images. Everything in this package is pure: no network,
// no clocks, no shared state between invocations.
package propagation

import (
	"errors"
	"fmt"
)

// Kind identifies a resource type the engine understands.
type Kind string

const (
	KindInstance      Kind = "ec2_instance"
	KindVolume        Kind = "ebs_volume"
	KindSnapshot      Kind = "ebs_snapshot"
	KindImage         Kind = "ami"
	KindFileSystem    Kind = "efs_filesystem"
	KindMountTarget   Kind = "efs_mount_target"
	KindAccessPoint   Kind = "efs_access_point"
	KindFsxFileSystem Kind = "fsx_filesystem"
	KindFsxVolume     Kind = "fsx_volume"
	KindFsxStorageVM  Kind = "fsx_svm"
	KindFsxBackup     Kind = "fsx_backup"
	KindFsxFileCache  Kind = "fsx_file_cache"
)

// Action is the planner's decision for one resource.
type Action string

const (
	ActionWrite             Action = "WRITE"
	ActionSkipAlreadyTagged Action = "SKIP_ALREADY_TAGGED"
	ActionSkipNoSourceName  Action = "SKIP_NO_SOURCE_NAME"
)

// TagPlanEntry is one planned tag operation. Value is empty for the
// identity key (the key itself carries the workload name) and non-empty
// only for Name backfill entries.
type TagPlanEntry struct {
	ResourceID string `json:"resource_id"`
	ARN        string `json:"arn,omitempty"` // set for FSx resources, which tag by ARN
	Kind       Kind   `json:"kind"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	Action     Action `json:"action"`
}

// Instance is an EC2 instance listing entry.
type Instance struct {
	ID        string
	State     string // running, stopped, terminated, ...
	Name      string // Name tag value, may be empty
	VolumeIDs []string
	Tags      map[string]string
}

// Volume is an EBS volume listing entry.
type Volume struct {
	ID         string
	InstanceID string // attachment, empty if detached
	SizeGiB    int32
	Tags       map[string]string
}

// Snapshot is an EBS snapshot listing entry.
type Snapshot struct {
	ID          string
	VolumeID    string
	Description string
	SizeGiB     int32
	Tags        map[string]string
}

// Image is an AMI listing entry.
type Image struct {
	ID          string
	InstanceID  string // source instance when provenance is recorded
	Name        string // AMI name (not the Name tag)
	SnapshotIDs []string
	Tags        map[string]string
}

// StorageResource is the uniform shape for EFS and FSx listings.
// ParentID is empty for roots (file systems, file caches).
type StorageResource struct {
	ID       string
	ARN      string
	Kind     Kind
	Name     string
	ParentID string
	Tags     map[string]string
}

// ErrNoName indicates a resource has no usable identifying name.
// Callers skip the resource; the run continues.
var ErrNoName = errors.New("no usable source name")

// Issue codes for non-fatal inconsistencies found while building graphs.
const (
	IssueDanglingParent  = "DANGLING_PARENT"
	IssueUnsupportedKind = "UNSUPPORTED_KIND"
	IssueDuplicateClaim  = "DUPLICATE_CLAIM"
)

// Issue records a listing inconsistency. Issues never abort a run.
type Issue struct {
	Code       string `json:"code"`
	ResourceID string `json:"resource_id"`
	Message    string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.ResourceID, i.Message)
}

// Node is one resource in an ownership forest. Children derive their tag
// from the root's source name.
type Node struct {
	ID       string
	ARN      string
	Kind     Kind
	Name     string // display name used for Name backfill on this subtree
	Tags     map[string]string
	Children []*Node
}
