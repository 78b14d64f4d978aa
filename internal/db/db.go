package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/geo"
	"github.com/lox/booking-search/internal/query"
)

// DatabaseFile is the name of the database inside the data directory
const DatabaseFile = "booking.db"

// DB represents a SQLite database connection
type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// New creates a new database connection
func New(dataDir string, logger *log.Logger) (*DB, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dbPath := filepath.Join(dataDir, DatabaseFile)
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := driver.Open(dsn, registerFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{
		db:     db,
		logger: logger,
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, logger.Debugf); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Debug("Database ready", "path", dbPath)
	return d, nil
}

// registerFunctions runs on every new connection
func registerFunctions(c *sqlite3.Conn) error {
	err := c.CreateFunction("haversine_km", 4, sqlite3.DETERMINISTIC, func(ctx sqlite3.Context, arg ...sqlite3.Value) {
		for _, a := range arg {
			if a.Type() == sqlite3.NULL {
				ctx.ResultNull()
				return
			}
		}
		ctx.ResultFloat(geo.DistanceKm(arg[0].Float(), arg[1].Float(), arg[2].Float(), arg[3].Float()))
	})
	if err != nil {
		return err
	}

	// parse_number yields NULL unless the whole value is a number
	return c.CreateFunction("parse_number", 1, sqlite3.DETERMINISTIC, func(ctx sqlite3.Context, arg ...sqlite3.Value) {
		switch arg[0].Type() {
		case sqlite3.INTEGER, sqlite3.FLOAT:
			ctx.ResultFloat(arg[0].Float())
		case sqlite3.TEXT:
			if v, ok := query.ParseNumber(arg[0].Text()); ok {
				ctx.ResultFloat(v)
				return
			}
			ctx.ResultNull()
		default:
			ctx.ResultNull()
		}
	})
}

// createTables creates the necessary tables in the database
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS currencies (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			exchange_rate REAL
		);

		CREATE TABLE IF NOT EXISTS property_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS unit_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			city TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			property_type_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			star_rating INTEGER NOT NULL DEFAULT 0,
			average_rating REAL NOT NULL DEFAULT 0,
			latitude REAL,
			longitude REAL,
			is_approved INTEGER NOT NULL DEFAULT 0,
			is_featured INTEGER NOT NULL DEFAULT 0,
			bookings_count INTEGER NOT NULL DEFAULT 0,
			views_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Full-text search over the property name, city and description
		CREATE VIRTUAL TABLE IF NOT EXISTS properties_fts USING fts5(
			name,
			city,
			description,
			content='properties',
			content_rowid='rowid'
		);

		CREATE TRIGGER IF NOT EXISTS properties_ai AFTER INSERT ON properties BEGIN
			INSERT INTO properties_fts(rowid, name, city, description)
			VALUES (new.rowid, new.name, new.city, new.description);
		END;

		CREATE TRIGGER IF NOT EXISTS properties_ad AFTER DELETE ON properties BEGIN
			INSERT INTO properties_fts(properties_fts, rowid, name, city, description)
			VALUES ('delete', old.rowid, old.name, old.city, old.description);
		END;

		CREATE TRIGGER IF NOT EXISTS properties_au AFTER UPDATE ON properties BEGIN
			INSERT INTO properties_fts(properties_fts, rowid, name, city, description)
			VALUES ('delete', old.rowid, old.name, old.city, old.description);
			INSERT INTO properties_fts(rowid, name, city, description)
			VALUES (new.rowid, new.name, new.city, new.description);
		END;

		CREATE TABLE IF NOT EXISTS units (
			id TEXT PRIMARY KEY,
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			unit_type_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			max_capacity INTEGER NOT NULL DEFAULT 0,
			pricing_method TEXT NOT NULL DEFAULT 'Daily',
			base_price REAL,
			base_currency TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		);

		-- One row per unit and calendar date; a missing row means available
		CREATE TABLE IF NOT EXISTS daily_schedules (
			unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			date TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'Available',
			price REAL,
			currency TEXT,
			PRIMARY KEY (unit_id, date)
		);

		CREATE TABLE IF NOT EXISTS unit_field_values (
			unit_id TEXT NOT NULL REFERENCES units(id) ON DELETE CASCADE,
			field_name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (unit_id, field_name)
		);

		CREATE TABLE IF NOT EXISTS amenities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS property_amenities (
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			amenity_id TEXT NOT NULL REFERENCES amenities(id) ON DELETE CASCADE,
			PRIMARY KEY (property_id, amenity_id)
		);

		CREATE TABLE IF NOT EXISTS property_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			is_main INTEGER NOT NULL DEFAULT 0,
			display_order INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Create indexes for faster lookups
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_properties_city ON properties(city COLLATE NOCASE)",
		"CREATE INDEX IF NOT EXISTS idx_properties_type ON properties(property_type_id)",
		"CREATE INDEX IF NOT EXISTS idx_properties_featured ON properties(is_featured, average_rating)",
		"CREATE INDEX IF NOT EXISTS idx_units_property ON units(property_id)",
		"CREATE INDEX IF NOT EXISTS idx_units_type ON units(unit_type_id)",
		"CREATE INDEX IF NOT EXISTS idx_property_images_property ON property_images(property_id)",
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
