package db

import (
	"context"
	"database/sql"
)

// Migration represents a single database migration
// Each migration should have a unique ID and an Up function
// that applies the migration.
type Migration struct {
	ID int
	Up func(db *sql.DB) error
}

// migrations is a slice of all migrations to be applied in order.
// Each migration has a unique ID and is only applied once.
var migrations = []Migration{
	{
		// Availability and price lookups scan schedules by status and currency
		ID: 1,
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_daily_schedules_status ON daily_schedules(unit_id, status, date);
				CREATE INDEX IF NOT EXISTS idx_daily_schedules_currency ON daily_schedules(unit_id, currency, date);
			`)
			return err
		},
	},
	{
		ID: 2,
		Up: func(db *sql.DB) error {
			_, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_currencies_default ON currencies(is_default) WHERE is_default = 1`)
			return err
		},
	},
}

// ApplyMigrations applies all pending migrations to the database.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger func(msg string, args ...interface{})) error {
	// Ensure the migrations table exists
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Get already applied migration IDs
	rows, err := db.QueryContext(ctx, `SELECT id FROM migrations`)
	if err != nil {
		return err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return err
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	// Apply pending migrations
	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		logger("Applying migration %d", m.ID)
		if err := m.Up(db); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO migrations (id) VALUES (?)`, m.ID); err != nil {
			return err
		}
		logger("Migration %d applied", m.ID)
	}

	return nil
}
