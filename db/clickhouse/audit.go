// Package clickhouse provides the optional audit sink: an append-only
// record of every plan entry a run produced and whether it was applied.
// The sink is write-only from the tool's perspective; the decision
// engine never reads it back.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"tag-propagator/decision/propagation"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// AuditRow is one recorded plan entry.
type AuditRow struct {
	ID         uuid.UUID `ch:"id"`
	RunID      uuid.UUID `ch:"run_id"`
	Region     string    `ch:"region"`
	ResourceID string    `ch:"resource_id"`
	Kind       string    `ch:"kind"`
	TagKey     string    `ch:"tag_key"`
	TagValue   string    `ch:"tag_value"`
	Action     string    `ch:"action"`
	Applied    bool      `ch:"applied"`
	CreatedAt  time.Time `ch:"created_at"`
}

// AuditStore writes plan entries to ClickHouse.
type AuditStore struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewAuditStore connects to ClickHouse.
func NewAuditStore(cfg *Config) (*AuditStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return &AuditStore{conn: conn, cfg: cfg}, nil
}

// EnsureSchema creates the audit table if it does not exist.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS tag_plan_audit (
			id          UUID,
			run_id      UUID,
			region      LowCardinality(String),
			resource_id String,
			kind        LowCardinality(String),
			tag_key     String,
			tag_value   String,
			action      LowCardinality(String),
			applied     Bool,
			created_at  DateTime
		)
		ENGINE = MergeTree()
		ORDER BY (run_id, region, resource_id)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// RecordPlan inserts one region's plan entries for a run. applied marks
// whether this run executed the WRITE entries or only planned them.
func (s *AuditStore) RecordPlan(ctx context.Context, runID uuid.UUID, region string, entries []propagation.TagPlanEntry, applied bool) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO tag_plan_audit (
			id, run_id, region, resource_id, kind,
			tag_key, tag_value, action, applied, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		wasApplied := applied && entry.Action == propagation.ActionWrite
		if err := batch.Append(
			uuid.New(), runID, region, entry.ResourceID, string(entry.Kind),
			entry.Key, entry.Value, string(entry.Action), wasApplied, now,
		); err != nil {
			return fmt.Errorf("failed to append audit row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send audit batch: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *AuditStore) Close() error {
	return s.conn.Close()
}
