package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lox/booking-search/internal/commands"
	"github.com/lox/booking-search/internal/db"
	"github.com/lox/booking-search/internal/seed"
)

type CLI struct {
	commands.CommonConfig

	Seed              uint64 `help:"Random seed, the same seed always produces the same catalogue" default:"1"`
	PropertiesPerCity int    `help:"Number of properties generated per city" default:"12"`
	Days              int    `help:"Number of scheduled days per unit" default:"90"`
	Start             string `help:"First scheduled date (YYYY-MM-DD), defaults to today"`
	Concurrency       int    `help:"Number of properties written concurrently" default:"4"`
	NoProgress        bool   `help:"Disable progress bar" default:"false"`
	Force             bool   `help:"Seed even when the store already holds properties" default:"false"`
}

func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := commands.SetupLogger(c.LogLevel)
	if err != nil {
		return err
	}

	start, err := commands.ParseDate(c.Start)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	database, err := db.New(c.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if !c.Force {
		stats, err := database.Stats(ctx)
		if err != nil {
			return err
		}
		for _, t := range stats.Tables {
			if t.Table == "properties" && t.Rows > 0 {
				return fmt.Errorf("store already holds %d properties, use --force to seed anyway", t.Rows)
			}
		}
	}

	opts := seed.Options{
		Seed:              c.Seed,
		PropertiesPerCity: c.PropertiesPerCity,
		Days:              c.Days,
		Concurrency:       c.Concurrency,
		Progress:          !c.NoProgress,
	}
	if start != nil {
		opts.Start = *start
	}

	began := time.Now()
	summary, err := seed.New(database, logger, opts).Seed(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed catalogue: %w", err)
	}

	fmt.Printf("Seeded %d properties, %d units and %d schedule days in %v\n",
		summary.Properties, summary.Units, summary.ScheduleDays, time.Since(began).Round(time.Millisecond))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("booking-seed"),
		kong.Description("Fill the booking store with a deterministic demo catalogue"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
