package aws

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"tag-propagator/decision/propagation"
)

func TestTagger_ApplyCountsOnlyRealWrites(t *testing.T) {
	tagger := NewTagger(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Mount targets cannot carry tags; skips never reach the writer.
	// Neither may inflate the applied count.
	applied, failed := tagger.Apply(context.Background(), []propagation.TagPlanEntry{
		{ResourceID: "fsmt-1", Kind: propagation.KindMountTarget, Key: "web-01", Action: propagation.ActionWrite},
		{ResourceID: "vol-1", Kind: propagation.KindVolume, Key: "web-01", Action: propagation.ActionSkipAlreadyTagged},
		{ResourceID: "snap-1", Kind: propagation.KindSnapshot, Action: propagation.ActionSkipNoSourceName},
	})

	require.Zero(t, applied)
	require.Zero(t, failed)
}
