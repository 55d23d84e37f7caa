package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// CostAllocationActivator activates propagated tag keys as billing
// cost-allocation tags so Cost Explorer can group by them.
type CostAllocationActivator struct {
	billing *costexplorer.Client
	logger  *slog.Logger
}

// NewCostAllocationActivator creates an activator.
func NewCostAllocationActivator(billing *costexplorer.Client, logger *slog.Logger) *CostAllocationActivator {
	return &CostAllocationActivator{billing: billing, logger: logger}
}

// EligibleKeys scans EC2 tag keys across the given regions and returns
// the ones not yet active as cost-allocation tags, sorted. Keys in the
// aws: namespace are excluded. Scan failures in one region are logged
// and skipped.
func (a *CostAllocationActivator) EligibleKeys(ctx context.Context, regions []string) ([]string, error) {
	active := make(map[string]bool)
	var token *string
	for {
		out, err := a.billing.ListCostAllocationTags(ctx, &costexplorer.ListCostAllocationTagsInput{
			NextToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list cost allocation tags: %w", err)
		}
		for _, tag := range out.CostAllocationTags {
			if tag.Status == cetypes.CostAllocationTagStatusActive {
				active[aws.ToString(tag.TagKey)] = true
			}
		}
		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}

	seen := make(map[string]bool)
	for _, region := range regions {
		clients, err := NewClients(ctx, region)
		if err != nil {
			a.logger.Warn("skipping region", "region", region, "error", err)
			continue
		}
		pager := ec2.NewDescribeTagsPaginator(clients.EC2, &ec2.DescribeTagsInput{
			Filters: []ec2types.Filter{{
				Name:   aws.String("resource-type"),
				Values: []string{"instance", "volume", "snapshot", "image"},
			}},
		})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				a.logger.Warn("could not scan tags", "region", region, "error", err)
				break
			}
			for _, tag := range page.Tags {
				key := aws.ToString(tag.Key)
				if strings.HasPrefix(key, "aws:") {
					continue
				}
				seen[key] = true
			}
		}
	}

	var eligible []string
	for key := range seen {
		if !active[key] {
			eligible = append(eligible, key)
		}
	}
	sort.Strings(eligible)
	return eligible, nil
}

// Activate marks the given keys active. The billing API caps each
// request at 20 status entries, so activation happens in batches.
func (a *CostAllocationActivator) Activate(ctx context.Context, keys []string) error {
	const batchSize = 20
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		entries := make([]cetypes.CostAllocationTagStatusEntry, 0, end-start)
		for _, key := range keys[start:end] {
			entries = append(entries, cetypes.CostAllocationTagStatusEntry{
				TagKey: aws.String(key),
				Status: cetypes.CostAllocationTagStatusActive,
			})
		}
		if _, err := a.billing.UpdateCostAllocationTagsStatus(ctx, &costexplorer.UpdateCostAllocationTagsStatusInput{
			CostAllocationTagsStatus: entries,
		}); err != nil {
			return fmt.Errorf("activate cost allocation tags: %w", err)
		}
	}
	return nil
}
