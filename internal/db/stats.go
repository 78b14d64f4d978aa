package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// statsTables are the tables reported by Stats, in display order
var statsTables = []string{
	"currencies",
	"property_types",
	"unit_types",
	"properties",
	"units",
	"daily_schedules",
	"unit_field_values",
	"amenities",
	"property_amenities",
	"property_images",
}

// TableCount is the row count of one table
type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// Stats describes the contents of the search store
type Stats struct {
	Tables       []TableCount `json:"tables"`
	Indexes      []string     `json:"indexes"`
	ScheduleFrom string       `json:"schedule_from,omitempty"`
	ScheduleTo   string       `json:"schedule_to,omitempty"`
	Migrations   int          `json:"migrations"`
	SizeBytes    int64        `json:"size_bytes"`
}

// Stats reports row counts, indexes and the span of the daily schedule
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	for _, table := range statsTables {
		var count int
		if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats.Tables = append(stats.Tables, TableCount{Table: table, Rows: count})
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'index' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		stats.Indexes = append(stats.Indexes, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	var from, to sql.NullString
	if err := d.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM daily_schedules`).Scan(&from, &to); err != nil {
		return nil, fmt.Errorf("failed to read schedule span: %w", err)
	}
	stats.ScheduleFrom = from.String
	stats.ScheduleTo = to.String

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations`).Scan(&stats.Migrations); err != nil {
		return nil, fmt.Errorf("failed to count migrations: %w", err)
	}

	var file string
	if err := d.db.QueryRowContext(ctx, `SELECT file FROM pragma_database_list WHERE name = 'main'`).Scan(&file); err == nil && file != "" {
		if info, err := os.Stat(filepath.Clean(file)); err == nil {
			stats.SizeBytes = info.Size()
		}
	}

	return stats, nil
}

// Optimize refreshes planner statistics and merges the full-text index segments
func (d *DB) Optimize(ctx context.Context) error {
	d.logger.Info("Optimizing database")

	statements := []string{
		`INSERT INTO properties_fts(properties_fts) VALUES ('optimize')`,
		`ANALYZE`,
		`PRAGMA optimize`,
	}
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	d.logger.Info("Database optimized")
	return nil
}

// RebuildSearchIndex rebuilds the full-text index from the properties table
func (d *DB) RebuildSearchIndex(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `INSERT INTO properties_fts(properties_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	return nil
}
