package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"github.com/aws/aws-sdk-go-v2/service/fsx"
	fsxtypes "github.com/aws/aws-sdk-go-v2/service/fsx/types"

	"tag-propagator/decision/propagation"
)

// Tagger issues one tag-write call per WRITE entry. A failed write is
// logged and counted, never fatal: the plan is safe to re-run and the
// written subset will replan as SKIP_ALREADY_TAGGED.
type Tagger struct {
	clients *Clients
	logger  *slog.Logger
}

// NewTagger creates a tagger for one region's clients.
func NewTagger(clients *Clients, logger *slog.Logger) *Tagger {
	return &Tagger{clients: clients, logger: logger}
}

// Apply executes every WRITE entry and returns the applied and failed
// counts. Skip entries and untaggable kinds pass through uncounted.
func (t *Tagger) Apply(ctx context.Context, entries []propagation.TagPlanEntry) (applied, failed int) {
	for _, entry := range entries {
		if entry.Action != propagation.ActionWrite || !taggable(entry.Kind) {
			continue
		}
		if err := t.write(ctx, entry); err != nil {
			t.logger.Error("tag write failed",
				"resource_id", entry.ResourceID, "kind", string(entry.Kind),
				"key", entry.Key, "error", err)
			failed++
			continue
		}
		applied++
	}
	return applied, failed
}

func (t *Tagger) write(ctx context.Context, entry propagation.TagPlanEntry) error {
	switch entry.Kind {
	case propagation.KindInstance, propagation.KindVolume, propagation.KindSnapshot, propagation.KindImage:
		_, err := t.clients.EC2.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{entry.ResourceID},
			Tags:      []ec2types.Tag{{Key: aws.String(entry.Key), Value: aws.String(entry.Value)}},
		})
		return err

	case propagation.KindFileSystem, propagation.KindAccessPoint:
		_, err := t.clients.EFS.TagResource(ctx, &efs.TagResourceInput{
			ResourceId: aws.String(entry.ResourceID),
			Tags:       []efstypes.Tag{{Key: aws.String(entry.Key), Value: aws.String(entry.Value)}},
		})
		return err

	case propagation.KindFsxFileSystem, propagation.KindFsxVolume, propagation.KindFsxStorageVM,
		propagation.KindFsxBackup, propagation.KindFsxFileCache:
		_, err := t.clients.FSx.TagResource(ctx, &fsx.TagResourceInput{
			ResourceARN: aws.String(entry.ARN),
			Tags:        []fsxtypes.Tag{{Key: aws.String(entry.Key), Value: aws.String(entry.Value)}},
		})
		return err
	}
	return fmt.Errorf("no tagging API for kind %s", entry.Kind)
}

// taggable reports whether the kind has a tag-write API. EFS mount
// targets are planned for visibility but cannot carry tags.
func taggable(k propagation.Kind) bool {
	return k != propagation.KindMountTarget
}
