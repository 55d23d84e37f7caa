// Package report renders plan entries, per-region summaries and the
// read-only inventory view on the console.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"tag-propagator/decision/propagation"
)

var kindLabels = map[propagation.Kind]string{
	propagation.KindInstance:      "EC2 Instance",
	propagation.KindVolume:        "Volume",
	propagation.KindSnapshot:      "Snapshot",
	propagation.KindImage:         "Image",
	propagation.KindFileSystem:    "EFS FileSystem",
	propagation.KindMountTarget:   "EFS MountTarget",
	propagation.KindAccessPoint:   "EFS AccessPoint",
	propagation.KindFsxFileSystem: "FSx FileSystem",
	propagation.KindFsxVolume:     "FSx Volume",
	propagation.KindFsxStorageVM:  "FSx SVM",
	propagation.KindFsxBackup:     "FSx Backup",
	propagation.KindFsxFileCache:  "FSx FileCache",
}

// KindLabel returns the console label for a resource kind.
func KindLabel(k propagation.Kind) string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

// PrintRegionHeader writes the banner the region loop prints before
// processing each region.
func PrintRegionHeader(w io.Writer, region, mode string) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(w, "REGION: %s | Mode: %s\n", strings.ToUpper(region), mode)
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 80))
}

// PrintEntry writes one plan entry. Applied selects the [APPLY] prefix
// over [PLAN]; skip entries keep their action name as the prefix.
func PrintEntry(w io.Writer, entry propagation.TagPlanEntry, applied bool) {
	switch entry.Action {
	case propagation.ActionWrite:
		prefix := "PLAN"
		if applied {
			prefix = "APPLY"
		}
		value := entry.Value
		if value == "" {
			value = "(empty)"
		}
		fmt.Fprintf(w, "    [%s] %s %s → %s = %s\n", prefix, KindLabel(entry.Kind), entry.ResourceID, entry.Key, value)
	case propagation.ActionSkipAlreadyTagged:
		fmt.Fprintf(w, "    [SKIP] %s %s already tagged %q\n", KindLabel(entry.Kind), entry.ResourceID, entry.Key)
	case propagation.ActionSkipNoSourceName:
		fmt.Fprintf(w, "    [SKIP] %s %s has no usable source name\n", KindLabel(entry.Kind), entry.ResourceID)
	}
}

// Summary counts a plan's outcomes.
type Summary struct {
	Writes        int
	AlreadyTagged int
	NoSourceName  int
}

// Summarize tallies plan entries.
func Summarize(entries []propagation.TagPlanEntry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.Action {
		case propagation.ActionWrite:
			s.Writes++
		case propagation.ActionSkipAlreadyTagged:
			s.AlreadyTagged++
		case propagation.ActionSkipNoSourceName:
			s.NoSourceName++
		}
	}
	return s
}

// PrintSummary writes the per-region tally line.
func PrintSummary(w io.Writer, region string, s Summary) {
	fmt.Fprintf(w, "[SUMMARY] %s → %d writes, %d already tagged, %d unnamed\n",
		region, s.Writes, s.AlreadyTagged, s.NoSourceName)
}

// Inventory is the read-only per-region view for the show action.
type Inventory struct {
	Region         string
	Instances      int
	Volumes        int
	Snapshots      int
	Images         int
	EFSFileSystems int
	FSxFileSystems int
	VolumeGiB      int64
	SnapshotGiB    int64
}

// EstimateMonthlyStorageCost prices the inventory's EBS footprint at a
// flat GB-month rate. Snapshots bill on changed blocks only, so the
// snapshot term is an upper bound.
func EstimateMonthlyStorageCost(inv Inventory, gbMonthRate decimal.Decimal) decimal.Decimal {
	gib := decimal.NewFromInt(inv.VolumeGiB + inv.SnapshotGiB)
	return gib.Mul(gbMonthRate)
}

// PrintInventory writes the show-mode block for one region.
func PrintInventory(w io.Writer, inv Inventory, gbMonthRate decimal.Decimal) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(w, "[SHOW] REGION: %s\n", strings.ToUpper(inv.Region))
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(w, "[EC2] Instances: %d\n", inv.Instances)
	fmt.Fprintf(w, "[EBS] Volumes: %d (%d GiB), Snapshots: %d (%d GiB)\n",
		inv.Volumes, inv.VolumeGiB, inv.Snapshots, inv.SnapshotGiB)
	fmt.Fprintf(w, "[AMI] Images: %d\n", inv.Images)
	fmt.Fprintf(w, "[EFS] FileSystems: %d\n", inv.EFSFileSystems)
	fmt.Fprintf(w, "[FSx] FileSystems: %d\n", inv.FSxFileSystems)
	fmt.Fprintf(w, "[EST] EBS storage ≤ $%s/month at $%s per GB-month\n",
		EstimateMonthlyStorageCost(inv, gbMonthRate).StringFixed(2), gbMonthRate.StringFixed(3))
}
