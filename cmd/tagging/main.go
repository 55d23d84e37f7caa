// tagging - workload tag propagator for AWS
//
// Propagates a Name-derived identity tag key from EC2 instances to
// their volumes, snapshots and AMIs, optionally to EFS/FSx storage, and
// can activate the propagated keys as cost-allocation tags.
//
// Usage:
//
//	tagging all [--apply] [--tag-storage] [--fix-orphans]
//	tagging set us-east-1 --apply
//	tagging dry-run [region]
//	tagging show [region]
//	tagging activate [region] [--apply]
//	tagging ec2|ebs|volumes|snapshots|fsx|efs [region] [--apply]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	awscloud "tag-propagator/cloud/aws"
	"tag-propagator/db/clickhouse"
	"tag-propagator/decision/propagation"
	"tag-propagator/pkg/platform"
	"tag-propagator/pkg/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "tagging",
		Usage:   "Propagate workload identity tags across EC2, EBS, AMI, EFS and FSx resources",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"TAGGING_LOG_LEVEL"},
			},
			&cli.StringSliceFlag{
				Name:    "regions",
				Usage:   "Regions to process (default: built-in region list)",
				EnvVars: []string{"TAGGING_REGIONS"},
			},
			&cli.BoolFlag{
				Name:  "discover-regions",
				Usage: "Discover enabled regions via DescribeRegions instead of the built-in list",
			},
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "Apply real changes. Without it everything runs in DRY-RUN mode",
			},
			&cli.BoolFlag{
				Name:  "tag-storage",
				Usage: "Also tag EFS and all FSx resource types",
			},
			&cli.BoolFlag{
				Name:  "fix-orphans",
				Usage: "ONLY fix orphaned snapshots and AMIs (no lineage tagging)",
			},
			&cli.BoolFlag{
				Name:    "audit",
				Usage:   "Record every plan entry in the ClickHouse audit table",
				EnvVars: []string{"TAGGING_AUDIT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host (audit sink)",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "tagging",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			regionCommand("all", "Process every configured region", nil, false),
			regionCommand("set", "Process a single region (region argument required)", nil, true),
			dryRunCommand(),
			showCommand(),
			activateCommand(),
			regionCommand("ec2", "EC2 lineage only (instances + volumes + snapshots + AMIs)", []propagation.Kind{
				propagation.KindInstance, propagation.KindVolume, propagation.KindSnapshot, propagation.KindImage,
			}, false),
			regionCommand("ebs", "EBS only (volumes + snapshots)", []propagation.Kind{
				propagation.KindVolume, propagation.KindSnapshot,
			}, false),
			regionCommand("volumes", "EBS volumes only", []propagation.Kind{propagation.KindVolume}, false),
			regionCommand("snapshots", "EBS snapshots only", []propagation.Kind{propagation.KindSnapshot}, false),
			regionCommand("fsx", "FSx resources only", []propagation.Kind{
				propagation.KindFsxFileSystem, propagation.KindFsxVolume, propagation.KindFsxStorageVM,
				propagation.KindFsxBackup, propagation.KindFsxFileCache,
			}, false),
			regionCommand("efs", "EFS resources only", []propagation.Kind{
				propagation.KindFileSystem, propagation.KindMountTarget, propagation.KindAccessPoint,
			}, false),
		},
	}

	if err := app.Run(os.Args); err != nil {
		platform.LogFatal(slog.Default(), "command failed", err)
	}
}

// =============================================================================
// TAGGING COMMANDS
// =============================================================================

func regionCommand(name, usage string, kinds []propagation.Kind, regionRequired bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[region]",
		Action: func(c *cli.Context) error {
			if regionRequired && c.Args().First() == "" {
				return fmt.Errorf("region is required for '%s'. Example: tagging %s us-east-1", name, name)
			}
			r, err := newRunner(c, !c.Bool("apply"))
			if err != nil {
				return err
			}
			defer r.close()
			if name == "fsx" || name == "efs" {
				r.tagStorage = true
			}
			return r.run(c.Context, c.Args().First(), kinds)
		},
	}
}

func dryRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "dry-run",
		Usage:     "Force DRY-RUN mode, even when --apply is present",
		ArgsUsage: "[region]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, true)
			if err != nil {
				return err
			}
			defer r.close()
			return r.run(c.Context, c.Args().First(), nil)
		},
	}
}

// =============================================================================
// SHOW COMMAND (read-only inventory)
// =============================================================================

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show resources only (no tagging, no lineage, no changes)",
		ArgsUsage: "[region]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, true)
			if err != nil {
				return err
			}
			defer r.close()

			regions, err := r.resolveRegions(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			fmt.Println("\n[SHOW MODE] No changes will be made.")
			rate, err := decimal.NewFromString(platform.GetEnv("TAGGING_GB_MONTH_RATE", "0.05"))
			if err != nil {
				return fmt.Errorf("invalid TAGGING_GB_MONTH_RATE: %w", err)
			}
			for _, region := range regions {
				inv, err := r.inventory(c.Context, region)
				if err != nil {
					r.logger.Warn("region not accessible", "region", region, "error", err)
					continue
				}
				report.PrintInventory(os.Stdout, inv, rate)
			}
			return nil
		},
	}
}

// =============================================================================
// ACTIVATE COMMAND (cost allocation tags)
// =============================================================================

func activateCommand() *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "Activate eligible tag keys as Cost Allocation Tags in AWS Billing",
		ArgsUsage: "[region]",
		Action: func(c *cli.Context) error {
			r, err := newRunner(c, !c.Bool("apply"))
			if err != nil {
				return err
			}
			defer r.close()

			regions, err := r.resolveRegions(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			billing, err := awscloud.NewCostExplorerClient(c.Context)
			if err != nil {
				return err
			}
			activator := awscloud.NewCostAllocationActivator(billing, r.logger)

			fmt.Printf("\n[COST ALLOCATION TAGS] Mode: %s\n", r.modeLabel())
			fmt.Printf("Regions: %s\n\n", strings.Join(regions, ", "))

			eligible, err := activator.EligibleKeys(c.Context, regions)
			if err != nil {
				return err
			}
			if len(eligible) == 0 {
				fmt.Println("No new Cost Allocation Tags to activate.")
				return nil
			}

			status := "PLAN"
			if !r.dryRun {
				status = "APPLY"
			}
			for _, key := range eligible {
				fmt.Printf("    [%s] %s\n", status, key)
			}

			if r.dryRun {
				fmt.Println("\nDRY-RUN: No changes made. Use --apply to activate.")
				return nil
			}
			if err := activator.Activate(c.Context, eligible); err != nil {
				return err
			}
			fmt.Printf("\n%d Cost Allocation Tags activated. Cost Explorer reflects them within 24-48 hours.\n", len(eligible))
			return nil
		},
	}
}

// =============================================================================
// RUNNER (region driver)
// =============================================================================

type runner struct {
	logger     *slog.Logger
	runID      uuid.UUID
	dryRun     bool
	tagStorage bool
	fixOrphans bool

	regions         []string
	discoverRegions bool

	planner    *propagation.Planner
	classifier *propagation.OrphanClassifier
	audit      *clickhouse.AuditStore
}

func newRunner(c *cli.Context, dryRun bool) (*runner, error) {
	runID := uuid.New()
	logger := platform.InitLogger(c.String("log-level"), runID.String())

	normalizer := propagation.NewKeyNormalizer(propagation.DefaultConstraints())
	r := &runner{
		logger:          logger,
		runID:           runID,
		dryRun:          dryRun,
		tagStorage:      c.Bool("tag-storage"),
		fixOrphans:      c.Bool("fix-orphans"),
		regions:         c.StringSlice("regions"),
		discoverRegions: c.Bool("discover-regions"),
		planner:         propagation.NewPlanner(normalizer).WithNameBackfill(true),
		classifier:      propagation.NewOrphanClassifier(normalizer).WithNameBackfill(true),
	}

	if c.Bool("audit") {
		store, err := clickhouse.NewAuditStore(&clickhouse.Config{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
			Debug:    platform.GetEnvBool("CLICKHOUSE_DEBUG", false),
		})
		if err != nil {
			return nil, fmt.Errorf("audit sink unavailable: %w", err)
		}
		if err := store.EnsureSchema(c.Context); err != nil {
			return nil, err
		}
		r.audit = store
	}
	return r, nil
}

func (r *runner) close() {
	if r.audit != nil {
		r.audit.Close()
	}
}

func (r *runner) modeLabel() string {
	if r.dryRun {
		return "DRY-RUN"
	}
	return "APPLY"
}

// resolveRegions picks the target regions: explicit argument, then the
// --regions flag, then TAGGING_DEFAULT_REGIONS, then the built-in list;
// --discover-regions (or an otherwise empty configuration) falls back
// to DescribeRegions.
func (r *runner) resolveRegions(ctx context.Context, arg string) ([]string, error) {
	if arg != "" {
		return []string{arg}, nil
	}
	regions := r.regions
	if len(regions) == 0 && !r.discoverRegions {
		regions = platform.GetEnvList("TAGGING_DEFAULT_REGIONS")
	}
	if len(regions) == 0 && !r.discoverRegions {
		regions = awscloud.DefaultRegions
	}
	if len(regions) == 0 {
		discovered, err := awscloud.DiscoverRegions(ctx)
		if err != nil {
			return nil, err
		}
		regions = discovered
	}
	out := make([]string, len(regions))
	copy(out, regions)
	sort.Strings(out)
	return out, nil
}

func (r *runner) run(ctx context.Context, regionArg string, kinds []propagation.Kind) error {
	regions, err := r.resolveRegions(ctx, regionArg)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s MODE\n", r.modeLabel())
	fmt.Printf("Target regions: %s\n", strings.Join(regions, ", "))

	for _, region := range regions {
		if err := r.processRegion(ctx, region, kinds); err != nil {
			r.logger.Error("region failed", "region", region, "error", err)
		}
	}

	fmt.Printf("\n%s\nTAG PROPAGATION COMPLETED\n%s\n", strings.Repeat("=", 80), strings.Repeat("=", 80))
	return nil
}

func (r *runner) processRegion(ctx context.Context, region string, kinds []propagation.Kind) error {
	report.PrintRegionHeader(os.Stdout, region, r.modeLabel())

	clients, err := awscloud.NewClients(ctx, region)
	if err != nil {
		return err
	}

	listings, err := clients.ListCompute(ctx)
	if err != nil {
		return err
	}

	graph := propagation.NewComputeGraphBuilder().Build(
		listings.Instances, listings.Volumes, listings.Snapshots, listings.Images)
	r.reportIssues(region, graph.Issues)

	var entries []propagation.TagPlanEntry
	if r.fixOrphans {
		live := make(map[string]bool, len(listings.Instances))
		for _, inst := range listings.Instances {
			if inst.State != "terminated" {
				live[inst.ID] = true
			}
		}
		entries = r.classifier.Classify(listings.Snapshots, listings.Images, live, graph.Claimed)
	} else {
		entries = r.planner.Plan(graph.Roots)
		entries = append(entries, r.planner.PlanDetached(listings.Volumes, listings.Snapshots, graph.Claimed)...)
		if r.tagStorage {
			storageListings, err := clients.ListStorage(ctx)
			if err != nil {
				r.logger.Warn("storage not accessible", "region", region, "error", err)
			} else {
				storageGraph := propagation.NewStorageGraphBuilder().Build(storageListings)
				r.reportIssues(region, storageGraph.Issues)
				entries = append(entries, r.planner.Plan(storageGraph.Roots)...)
			}
		}
	}

	entries = filterKinds(entries, kinds)

	for _, entry := range entries {
		report.PrintEntry(os.Stdout, entry, !r.dryRun)
	}

	if !r.dryRun {
		applied, failed := awscloud.NewTagger(clients, r.logger).Apply(ctx, entries)
		r.logger.Info("writes executed", "region", region, "applied", applied, "failed", failed)
	}

	if r.audit != nil {
		if err := r.audit.RecordPlan(ctx, r.runID, region, entries, !r.dryRun); err != nil {
			r.logger.Warn("audit write failed", "region", region, "error", err)
		}
	}

	report.PrintSummary(os.Stdout, region, report.Summarize(entries))
	return nil
}

func (r *runner) reportIssues(region string, issues []propagation.Issue) {
	for _, issue := range issues {
		r.logger.Warn("listing inconsistency",
			"region", region, "code", issue.Code,
			"resource_id", issue.ResourceID, "detail", issue.Message)
	}
}

func (r *runner) inventory(ctx context.Context, region string) (report.Inventory, error) {
	clients, err := awscloud.NewClients(ctx, region)
	if err != nil {
		return report.Inventory{}, err
	}
	listings, err := clients.ListCompute(ctx)
	if err != nil {
		return report.Inventory{}, err
	}

	inv := report.Inventory{
		Region:    region,
		Instances: len(listings.Instances),
		Volumes:   len(listings.Volumes),
		Snapshots: len(listings.Snapshots),
		Images:    len(listings.Images),
	}
	for _, v := range listings.Volumes {
		inv.VolumeGiB += int64(v.SizeGiB)
	}
	for _, s := range listings.Snapshots {
		inv.SnapshotGiB += int64(s.SizeGiB)
	}

	storageListings, err := clients.ListStorage(ctx)
	if err != nil {
		r.logger.Warn("storage not accessible", "region", region, "error", err)
		return inv, nil
	}
	for _, sr := range storageListings {
		switch sr.Kind {
		case propagation.KindFileSystem:
			inv.EFSFileSystems++
		case propagation.KindFsxFileSystem:
			inv.FSxFileSystems++
		}
	}
	return inv, nil
}

func filterKinds(entries []propagation.TagPlanEntry, kinds []propagation.Kind) []propagation.TagPlanEntry {
	if len(kinds) == 0 {
		return entries
	}
	allowed := make(map[propagation.Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	out := make([]propagation.TagPlanEntry, 0, len(entries))
	for _, e := range entries {
		if allowed[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}
