package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lox/booking-search/internal/commands"
	"github.com/lox/booking-search/internal/config"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

type CLI struct {
	commands.CommonConfig
	commands.MessagesConfig

	Timeout time.Duration `help:"Maximum time a search may take" default:"30s"`

	Units      UnitsCmd      `cmd:"" help:"Search bookable units, relaxing the request when too few match."`
	Properties PropertiesCmd `cmd:"" help:"Search properties with their matching units."`
	Config     ConfigCmd     `cmd:"" help:"Write the effective engine configuration as YAML."`
}

type UnitsCmd struct {
	commands.RequestFlags
	JSON bool `help:"Print the raw result as JSON" default:"false"`
}

type PropertiesCmd struct {
	commands.RequestFlags
	JSON bool `help:"Print the raw result as JSON" default:"false"`
}

type ConfigCmd struct {
	Output string `help:"File to write, stdout when empty" short:"o"`
}

func (c *UnitsCmd) Run(cli *CLI) error {
	req, err := c.SearchRequest()
	if err != nil {
		return err
	}

	ctx, cancel := cli.context()
	defer cancel()

	rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Engine.SearchUnits(ctx, req)
	if err != nil {
		return fmt.Errorf("search cancelled: %w", err)
	}
	if c.JSON {
		return printJSON(result)
	}

	printMeta(result.SearchMeta)
	for _, item := range result.Items {
		fmt.Printf("%s: %s at %s, %s - %s %s\n", item.UnitID, item.UnitName, item.PropertyName, item.City, formatPrice(item.Price), item.Currency)
		fmt.Printf("  Capacity: %d  Stars: %d  Rating: %.1f  Score: %.0f\n", item.MaxCapacity, item.StarRating, item.AverageRating, item.RelevanceScore)
		if item.DistanceKm != nil {
			fmt.Printf("  Distance: %.1f km\n", *item.DistanceKm)
		}
		if !item.IsAvailable {
			fmt.Println("  Not available for the requested dates")
		}
		fmt.Println()
	}
	return nil
}

func (c *PropertiesCmd) Run(cli *CLI) error {
	req, err := c.SearchRequest()
	if err != nil {
		return err
	}

	ctx, cancel := cli.context()
	defer cancel()

	rt, err := cli.runtime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Engine.SearchPropertiesWithUnits(ctx, req)
	if err != nil {
		return fmt.Errorf("search cancelled: %w", err)
	}
	if c.JSON {
		return printJSON(result)
	}

	printMeta(result.SearchMeta)
	for _, p := range result.Properties {
		fmt.Printf("%s: %s, %s - %s to %s %s\n", p.PropertyID, p.Name, p.City, formatPrice(p.MinPrice), formatPrice(p.MaxPrice), p.Currency)
		fmt.Printf("  Stars: %d  Rating: %.1f  Matching units: %d\n", p.StarRating, p.AverageRating, p.TotalMatchedUnits)
		for _, u := range p.MatchedUnits {
			fmt.Printf("  - %s: %s, %s %s, sleeps %d\n", u.UnitID, u.UnitName, formatPrice(u.Price), u.Currency, u.MaxCapacity)
		}
		for _, m := range p.Mismatches {
			fmt.Printf("  ! %s\n", m.Description)
		}
		fmt.Println()
	}
	return nil
}

func (c *ConfigCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}
	if c.Output != "" {
		return cfg.WriteYAML(c.Output)
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func (cli *CLI) context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func (cli *CLI) runtime(ctx context.Context) (*commands.Runtime, error) {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return nil, err
	}
	return commands.SetupRuntime(ctx, cli.CommonConfig, cli.MessagesConfig, logger)
}

func printMeta(meta types.SearchMeta) {
	if !meta.Success {
		fmt.Printf("Search failed: %s\n", meta.ErrorMessage)
	}
	fmt.Printf("%s\n", meta.Message)
	fmt.Printf("Level: %s  Results: %d  Page %d of %d  (%dms)\n", meta.RelaxationLevel, meta.TotalCount, meta.PageNumber, meta.TotalPages, meta.SearchTimeMs)
	for _, note := range meta.RelaxedFilters {
		fmt.Printf("  relaxed: %s\n", note)
	}
	for _, action := range meta.SuggestedActions {
		fmt.Printf("  try: %s\n", action)
	}
	fmt.Println()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatPrice(p *decimal.Decimal) string {
	if p == nil {
		return "?"
	}
	return p.StringFixed(2)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("booking-search"),
		kong.Description("Search the booking catalogue with automatic relaxation"),
		kong.UsageOnError(),
	)
	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
