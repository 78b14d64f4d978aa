package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lox/booking-search/internal/commands"
	"github.com/lox/booking-search/internal/db"
)

type CLI struct {
	commands.CommonConfig

	Optimize     bool `help:"Refresh planner statistics and merge the full-text index before reporting" default:"false"`
	RebuildIndex bool `help:"Rebuild the full-text index from the properties table" default:"false"`
	JSON         bool `help:"Print the stats as JSON" default:"false"`
}

func (c *CLI) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger, err := commands.SetupLogger(c.LogLevel)
	if err != nil {
		return err
	}

	database, err := db.New(c.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if c.RebuildIndex {
		if err := database.RebuildSearchIndex(ctx); err != nil {
			return err
		}
		logger.Info("Search index rebuilt")
	}
	if c.Optimize {
		if err := database.Optimize(ctx); err != nil {
			return err
		}
	}

	stats, err := database.Stats(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Println("Tables:")
	for _, t := range stats.Tables {
		fmt.Printf("  %-20s %d\n", t.Table, t.Rows)
	}
	fmt.Printf("Indexes: %d\n", len(stats.Indexes))
	for _, name := range stats.Indexes {
		fmt.Printf("  %s\n", name)
	}
	if stats.ScheduleFrom != "" {
		fmt.Printf("Schedule: %s to %s\n", stats.ScheduleFrom, stats.ScheduleTo)
	}
	fmt.Printf("Migrations applied: %d\n", stats.Migrations)
	fmt.Printf("Size: %.1f MiB\n", float64(stats.SizeBytes)/(1<<20))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("booking-stats"),
		kong.Description("Report on and maintain the booking store"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
