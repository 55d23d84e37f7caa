package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"tag-propagator/decision/propagation"
)

// ComputeListings holds one region's compute-side listings, already in
// the core's shapes.
type ComputeListings struct {
	Instances []propagation.Instance
	Volumes   []propagation.Volume
	Snapshots []propagation.Snapshot
	Images    []propagation.Image
}

// ListCompute fetches instances, volumes, self-owned snapshots and
// self-owned images for the client's region.
func (c *Clients) ListCompute(ctx context.Context) (*ComputeListings, error) {
	listings := &ComputeListings{}

	instPager := ec2.NewDescribeInstancesPaginator(c.EC2, &ec2.DescribeInstancesInput{})
	for instPager.HasMorePages() {
		page, err := instPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances in %s: %w", c.Region, err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				listings.Instances = append(listings.Instances, convertInstance(inst))
			}
		}
	}

	volPager := ec2.NewDescribeVolumesPaginator(c.EC2, &ec2.DescribeVolumesInput{})
	for volPager.HasMorePages() {
		page, err := volPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes in %s: %w", c.Region, err)
		}
		for _, vol := range page.Volumes {
			listings.Volumes = append(listings.Volumes, convertVolume(vol))
		}
	}

	snapPager := ec2.NewDescribeSnapshotsPaginator(c.EC2, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for snapPager.HasMorePages() {
		page, err := snapPager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe snapshots in %s: %w", c.Region, err)
		}
		for _, snap := range page.Snapshots {
			listings.Snapshots = append(listings.Snapshots, convertSnapshot(snap))
		}
	}

	imgOut, err := c.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
	})
	if err != nil {
		return nil, fmt.Errorf("describe images in %s: %w", c.Region, err)
	}
	for _, img := range imgOut.Images {
		listings.Images = append(listings.Images, convertImage(img))
	}

	return listings, nil
}

func convertInstance(inst ec2types.Instance) propagation.Instance {
	tags := tagMap(inst.Tags)
	var volumeIDs []string
	for _, bdm := range inst.BlockDeviceMappings {
		if bdm.Ebs != nil && bdm.Ebs.VolumeId != nil {
			volumeIDs = append(volumeIDs, *bdm.Ebs.VolumeId)
		}
	}
	state := ""
	if inst.State != nil {
		state = string(inst.State.Name)
	}
	return propagation.Instance{
		ID:        aws.ToString(inst.InstanceId),
		State:     state,
		Name:      tags[propagation.NameTagKey],
		VolumeIDs: volumeIDs,
		Tags:      tags,
	}
}

func convertVolume(vol ec2types.Volume) propagation.Volume {
	instanceID := ""
	for _, att := range vol.Attachments {
		if att.InstanceId != nil {
			instanceID = *att.InstanceId
			break
		}
	}
	return propagation.Volume{
		ID:         aws.ToString(vol.VolumeId),
		InstanceID: instanceID,
		SizeGiB:    aws.ToInt32(vol.Size),
		Tags:       tagMap(vol.Tags),
	}
}

func convertSnapshot(snap ec2types.Snapshot) propagation.Snapshot {
	return propagation.Snapshot{
		ID:          aws.ToString(snap.SnapshotId),
		VolumeID:    aws.ToString(snap.VolumeId),
		Description: aws.ToString(snap.Description),
		SizeGiB:     aws.ToInt32(snap.VolumeSize),
		Tags:        tagMap(snap.Tags),
	}
}

func convertImage(img ec2types.Image) propagation.Image {
	var snapshotIDs []string
	for _, bdm := range img.BlockDeviceMappings {
		if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
			snapshotIDs = append(snapshotIDs, *bdm.Ebs.SnapshotId)
		}
	}
	return propagation.Image{
		ID:          aws.ToString(img.ImageId),
		InstanceID:  aws.ToString(img.SourceInstanceId),
		Name:        aws.ToString(img.Name),
		SnapshotIDs: snapshotIDs,
		Tags:        tagMap(img.Tags),
	}
}

func tagMap(tags []ec2types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return m
}
