package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"github.com/aws/aws-sdk-go-v2/service/fsx"
	fsxtypes "github.com/aws/aws-sdk-go-v2/service/fsx/types"

	"tag-propagator/decision/propagation"
)

// ListStorage fetches the region's EFS and FSx resources as the uniform
// storage shape the core consumes. Access failures on one service are
// returned to the caller, which treats them as per-region warnings.
func (c *Clients) ListStorage(ctx context.Context) ([]propagation.StorageResource, error) {
	var resources []propagation.StorageResource

	efsResources, err := c.listEFS(ctx)
	if err != nil {
		return nil, err
	}
	resources = append(resources, efsResources...)

	fsxResources, err := c.listFSx(ctx)
	if err != nil {
		return nil, err
	}
	return append(resources, fsxResources...), nil
}

func (c *Clients) listEFS(ctx context.Context) ([]propagation.StorageResource, error) {
	var resources []propagation.StorageResource

	fsPager := efs.NewDescribeFileSystemsPaginator(c.EFS, &efs.DescribeFileSystemsInput{})
	for fsPager.HasMorePages() {
		page, err := fsPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe EFS file systems in %s: %w", c.Region, err)
		}
		for _, fs := range page.FileSystems {
			fsID := aws.ToString(fs.FileSystemId)
			resources = append(resources, propagation.StorageResource{
				ID:   fsID,
				ARN:  aws.ToString(fs.FileSystemArn),
				Kind: propagation.KindFileSystem,
				Name: aws.ToString(fs.Name),
				Tags: efsTagMap(fs.Tags),
			})

			aps, err := c.listAccessPoints(ctx, fsID)
			if err != nil {
				return nil, err
			}
			resources = append(resources, aps...)

			mts, err := c.listMountTargets(ctx, fsID)
			if err != nil {
				return nil, err
			}
			resources = append(resources, mts...)
		}
	}
	return resources, nil
}

func (c *Clients) listAccessPoints(ctx context.Context, fsID string) ([]propagation.StorageResource, error) {
	var resources []propagation.StorageResource
	pager := efs.NewDescribeAccessPointsPaginator(c.EFS, &efs.DescribeAccessPointsInput{
		FileSystemId: aws.String(fsID),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe access points for %s: %w", fsID, err)
		}
		for _, ap := range page.AccessPoints {
			resources = append(resources, propagation.StorageResource{
				ID:       aws.ToString(ap.AccessPointId),
				ARN:      aws.ToString(ap.AccessPointArn),
				Kind:     propagation.KindAccessPoint,
				ParentID: fsID,
				Tags:     efsTagMap(ap.Tags),
			})
		}
	}
	return resources, nil
}

func (c *Clients) listMountTargets(ctx context.Context, fsID string) ([]propagation.StorageResource, error) {
	var resources []propagation.StorageResource
	var marker *string
	for {
		out, err := c.EFS.DescribeMountTargets(ctx, &efs.DescribeMountTargetsInput{
			FileSystemId: aws.String(fsID),
			Marker:       marker,
		})
		if err != nil {
			return nil, fmt.Errorf("describe mount targets for %s: %w", fsID, err)
		}
		for _, mt := range out.MountTargets {
			// Mount targets carry no tags of their own; the planner
			// still sees them so the dry-run shows the full graph.
			resources = append(resources, propagation.StorageResource{
				ID:       aws.ToString(mt.MountTargetId),
				Kind:     propagation.KindMountTarget,
				ParentID: fsID,
			})
		}
		if out.NextMarker == nil {
			return resources, nil
		}
		marker = out.NextMarker
	}
}

func (c *Clients) listFSx(ctx context.Context) ([]propagation.StorageResource, error) {
	var resources []propagation.StorageResource

	fsPager := fsx.NewDescribeFileSystemsPaginator(c.FSx, &fsx.DescribeFileSystemsInput{})
	for fsPager.HasMorePages() {
		page, err := fsPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe FSx file systems in %s: %w", c.Region, err)
		}
		for _, fs := range page.FileSystems {
			tags := fsxTagMap(fs.Tags)
			resources = append(resources, propagation.StorageResource{
				ID:   aws.ToString(fs.FileSystemId),
				ARN:  aws.ToString(fs.ResourceARN),
				Kind: propagation.KindFsxFileSystem,
				Name: tags[propagation.NameTagKey],
				Tags: tags,
			})
		}
	}

	volPager := fsx.NewDescribeVolumesPaginator(c.FSx, &fsx.DescribeVolumesInput{})
	for volPager.HasMorePages() {
		page, err := volPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe FSx volumes in %s: %w", c.Region, err)
		}
		for _, vol := range page.Volumes {
			resources = append(resources, propagation.StorageResource{
				ID:       aws.ToString(vol.VolumeId),
				ARN:      aws.ToString(vol.ResourceARN),
				Kind:     propagation.KindFsxVolume,
				ParentID: aws.ToString(vol.FileSystemId),
				Tags:     fsxTagMap(vol.Tags),
			})
		}
	}

	svmPager := fsx.NewDescribeStorageVirtualMachinesPaginator(c.FSx, &fsx.DescribeStorageVirtualMachinesInput{})
	for svmPager.HasMorePages() {
		page, err := svmPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe FSx storage VMs in %s: %w", c.Region, err)
		}
		for _, svm := range page.StorageVirtualMachines {
			resources = append(resources, propagation.StorageResource{
				ID:       aws.ToString(svm.StorageVirtualMachineId),
				ARN:      aws.ToString(svm.ResourceARN),
				Kind:     propagation.KindFsxStorageVM,
				ParentID: aws.ToString(svm.FileSystemId),
				Tags:     fsxTagMap(svm.Tags),
			})
		}
	}

	bkPager := fsx.NewDescribeBackupsPaginator(c.FSx, &fsx.DescribeBackupsInput{})
	for bkPager.HasMorePages() {
		page, err := bkPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe FSx backups in %s: %w", c.Region, err)
		}
		for _, bk := range page.Backups {
			parentID := ""
			if bk.FileSystem != nil {
				parentID = aws.ToString(bk.FileSystem.FileSystemId)
			} else if bk.Volume != nil {
				parentID = aws.ToString(bk.Volume.FileSystemId)
			}
			resources = append(resources, propagation.StorageResource{
				ID:       aws.ToString(bk.BackupId),
				ARN:      aws.ToString(bk.ResourceARN),
				Kind:     propagation.KindFsxBackup,
				ParentID: parentID,
				Tags:     fsxTagMap(bk.Tags),
			})
		}
	}

	fcPager := fsx.NewDescribeFileCachesPaginator(c.FSx, &fsx.DescribeFileCachesInput{})
	for fcPager.HasMorePages() {
		page, err := fcPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe FSx file caches in %s: %w", c.Region, err)
		}
		for _, fc := range page.FileCaches {
			arn := aws.ToString(fc.ResourceARN)
			tags, err := c.fsxResourceTags(ctx, arn)
			if err != nil {
				return nil, err
			}
			resources = append(resources, propagation.StorageResource{
				ID:   aws.ToString(fc.FileCacheId),
				ARN:  arn,
				Kind: propagation.KindFsxFileCache,
				Name: tags[propagation.NameTagKey],
				Tags: tags,
			})
		}
	}

	return resources, nil
}

// fsxResourceTags fetches tags for resources whose describe output does
// not include them (file caches).
func (c *Clients) fsxResourceTags(ctx context.Context, arn string) (map[string]string, error) {
	out, err := c.FSx.ListTagsForResource(ctx, &fsx.ListTagsForResourceInput{
		ResourceARN: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", arn, err)
	}
	return fsxTagMap(out.Tags), nil
}

func efsTagMap(tags []efstypes.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}

func fsxTagMap(tags []fsxtypes.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}
