package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lox/booking-search/internal/commands"
	"github.com/lox/booking-search/internal/mcp"
)

type CLI struct {
	commands.CommonConfig
	commands.MessagesConfig
}

func (c *CLI) Run() error {
	ctx := context.Background()

	logger, err := commands.SetupLogger(c.LogLevel)
	if err != nil {
		return err
	}

	rt, err := commands.SetupRuntime(ctx, c.CommonConfig, c.MessagesConfig, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Serving booking search over stdio", "data_dir", c.DataDir)
	return mcp.New(rt.Engine, rt.DB, logger).Run()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("booking-mcp-server"),
		kong.Description("Expose the booking search tools over the Model Context Protocol"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
