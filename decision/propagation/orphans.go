package propagation

import (
	"regexp"
	"strings"
)

var (
	instanceIDPattern = regexp.MustCompile(`\bi-[0-9a-f]{8,17}\b`)
	imageIDPattern    = regexp.MustCompile(`\bami-[0-9a-f]{8,17}\b`)
	// awsIDToken matches provider-assigned ids so the name-hint scan can
	// pass over them inside free-text descriptions.
	awsIDToken = regexp.MustCompile(`^(i|vol|snap|ami|fs|fsap|fsvol|svm|backup)-[0-9a-f]+$`)
)

// OrphanClassifier finds snapshots and images whose originating instance
// no longer exists and plans a tag write for them from whatever lineage
// hint survives. It operates only on resources the compute graph did not
// claim, so its candidates and the graph's reachable set partition the
// region's snapshots.
type OrphanClassifier struct {
	normalizer   *KeyNormalizer
	nameBackfill bool
}

// NewOrphanClassifier creates a classifier using the given normalizer.
func NewOrphanClassifier(n *KeyNormalizer) *OrphanClassifier {
	return &OrphanClassifier{normalizer: n}
}

// WithNameBackfill also plans Name=<recovered name> for orphans missing
// a Name tag.
func (c *OrphanClassifier) WithNameBackfill(enabled bool) *OrphanClassifier {
	c.nameBackfill = enabled
	return c
}

// Classify inspects every snapshot and image outside the claimed set.
// live holds the ids of instances that still exist; claimed reports
// reachability from the compute graph (pass ComputeGraph.Claimed).
// Orphans with no recoverable name yield SKIP_NO_SOURCE_NAME entries
// rather than aborting.
func (c *OrphanClassifier) Classify(snapshots []Snapshot, images []Image, live map[string]bool, claimed func(string) bool) []TagPlanEntry {
	imageByID := make(map[string]Image, len(images))
	for _, img := range images {
		imageByID[img.ID] = img
	}

	var entries []TagPlanEntry
	orphanImageRefs := make(map[string]bool)

	for _, snap := range sortSnapshots(snapshots) {
		if claimed != nil && claimed(snap.ID) {
			continue
		}
		if ref := instanceIDPattern.FindString(snap.Description); ref != "" && live[ref] {
			// Provenance points at a live instance; leave it for the
			// lineage pass once the attachment reappears.
			continue
		}
		if _, named := snap.Tags[NameTagKey]; named {
			continue
		}
		for _, amiID := range imageIDPattern.FindAllString(snap.Description, -1) {
			orphanImageRefs[amiID] = true
		}
		name := c.recoverSnapshotName(snap, imageByID)
		entries = c.planOrphan(entries, snap.ID, "", KindSnapshot, name, snap.Tags)
	}

	for _, img := range sortImages(images) {
		if claimed != nil && claimed(img.ID) {
			continue
		}
		orphaned := img.InstanceID != "" && !live[img.InstanceID]
		if !orphaned && !orphanImageRefs[img.ID] {
			continue
		}
		name := img.Tags[NameTagKey]
		if name == "" {
			name = img.Name
		}
		entries = c.planOrphan(entries, img.ID, "", KindImage, name, img.Tags)
	}

	return entries
}

func (c *OrphanClassifier) planOrphan(entries []TagPlanEntry, id, arn string, kind Kind, name string, tags map[string]string) []TagPlanEntry {
	key, err := c.normalizer.Normalize(name)
	if err != nil {
		return append(entries, TagPlanEntry{
			ResourceID: id, ARN: arn, Kind: kind, Action: ActionSkipNoSourceName,
		})
	}

	entry := TagPlanEntry{ResourceID: id, ARN: arn, Kind: kind, Key: key, Value: EmptyTagValue}
	if _, tagged := tags[key]; tagged {
		entry.Action = ActionSkipAlreadyTagged
	} else {
		entry.Action = ActionWrite
	}
	entries = append(entries, entry)

	if c.nameBackfill {
		if _, has := tags[NameTagKey]; !has {
			entries = append(entries, TagPlanEntry{
				ResourceID: id, ARN: arn, Kind: kind,
				Key: NameTagKey, Value: name, Action: ActionWrite,
			})
		}
	}
	return entries
}

// recoverSnapshotName finds the best lineage hint for an orphan snapshot:
// an AMI referenced in the description (Name tag, then AMI name), then
// the first description token that is not a provider id.
func (c *OrphanClassifier) recoverSnapshotName(snap Snapshot, imageByID map[string]Image) string {
	for _, amiID := range imageIDPattern.FindAllString(snap.Description, -1) {
		img, ok := imageByID[amiID]
		if !ok {
			continue
		}
		if name := img.Tags[NameTagKey]; name != "" {
			return name
		}
		if img.Name != "" {
			return img.Name
		}
	}

	for _, token := range strings.Fields(snap.Description) {
		token = strings.Trim(token, ".,:;()[]")
		if token == "" || awsIDToken.MatchString(token) {
			continue
		}
		return token
	}
	return ""
}
