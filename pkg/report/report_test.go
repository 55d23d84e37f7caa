package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tag-propagator/decision/propagation"
)

func TestSummarize(t *testing.T) {
	entries := []propagation.TagPlanEntry{
		{Action: propagation.ActionWrite},
		{Action: propagation.ActionWrite},
		{Action: propagation.ActionSkipAlreadyTagged},
		{Action: propagation.ActionSkipNoSourceName},
	}
	s := Summarize(entries)
	require.Equal(t, Summary{Writes: 2, AlreadyTagged: 1, NoSourceName: 1}, s)
}

func TestPrintEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   propagation.TagPlanEntry
		applied bool
		want    string
	}{
		{
			name: "planned empty value",
			entry: propagation.TagPlanEntry{
				ResourceID: "vol-1", Kind: propagation.KindVolume,
				Key: "web-01", Action: propagation.ActionWrite,
			},
			want: "    [PLAN] Volume vol-1 → web-01 = (empty)\n",
		},
		{
			name: "applied with value",
			entry: propagation.TagPlanEntry{
				ResourceID: "vol-1", Kind: propagation.KindVolume,
				Key: "Name", Value: "web-01", Action: propagation.ActionWrite,
			},
			applied: true,
			want:    "    [APPLY] Volume vol-1 → Name = web-01\n",
		},
		{
			name: "already tagged",
			entry: propagation.TagPlanEntry{
				ResourceID: "i-1", Kind: propagation.KindInstance,
				Key: "web-01", Action: propagation.ActionSkipAlreadyTagged,
			},
			want: "    [SKIP] EC2 Instance i-1 already tagged \"web-01\"\n",
		},
		{
			name: "no source name",
			entry: propagation.TagPlanEntry{
				ResourceID: "snap-1", Kind: propagation.KindSnapshot,
				Action: propagation.ActionSkipNoSourceName,
			},
			want: "    [SKIP] Snapshot snap-1 has no usable source name\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintEntry(&buf, tt.entry, tt.applied)
			require.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEstimateMonthlyStorageCost(t *testing.T) {
	inv := Inventory{VolumeGiB: 400, SnapshotGiB: 100}
	rate := decimal.RequireFromString("0.05")
	require.Equal(t, "25.00", EstimateMonthlyStorageCost(inv, rate).StringFixed(2))
}

func TestKindLabelFallsBackToRawKind(t *testing.T) {
	require.Equal(t, "something_new", KindLabel(propagation.Kind("something_new")))
}
