// Package aws implements the cloud-description and tag-write
// collaborators around the propagation core: regional listing of EC2,
// EFS and FSx resources, tag writes, region discovery and
// cost-allocation tag activation.
package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	"github.com/aws/aws-sdk-go-v2/service/fsx"

	"tag-propagator/pkg/platform"
)

// DefaultRegions is the region set processed when none is configured.
var DefaultRegions = []string{
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
	"ap-south-1", "ap-northeast-3", "ap-northeast-2",
	"ap-southeast-1", "ap-southeast-2", "ap-northeast-1",
	"ca-central-1", "eu-central-1", "eu-west-1", "eu-west-2",
	"eu-west-3", "eu-north-1", "sa-east-1",
}

// Clients bundles the per-region service clients.
type Clients struct {
	Region string
	EC2    *ec2.Client
	EFS    *efs.Client
	FSx    *fsx.Client
}

// NewClients loads the default credential chain and builds clients
// scoped to one region. Listing sweeps over many regions hit throttling
// fast, so the retry budget is tunable.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithRetryMaxAttempts(platform.GetEnvInt("TAGGING_MAX_RETRIES", 5)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for %s: %w", region, err)
	}
	return &Clients{
		Region: region,
		EC2:    ec2.NewFromConfig(cfg),
		EFS:    efs.NewFromConfig(cfg),
		FSx:    fsx.NewFromConfig(cfg),
	}, nil
}

// NewCostExplorerClient builds the billing client. Cost Explorer is a
// global API; the region only anchors the credential chain.
func NewCostExplorerClient(ctx context.Context) (*costexplorer.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return costexplorer.NewFromConfig(cfg), nil
}

// DiscoverRegions lists the enabled regions via DescribeRegions, used
// when the configured region list is empty.
func DiscoverRegions(ctx context.Context) ([]string, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := ec2.NewFromConfig(cfg)
	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, aws.ToString(r.RegionName))
	}
	sort.Strings(regions)
	return regions, nil
}
