package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/cache"
	"github.com/lox/booking-search/internal/config"
	"github.com/lox/booking-search/internal/db"
	"github.com/lox/booking-search/internal/messages"
	"github.com/lox/booking-search/internal/rates"
	"github.com/lox/booking-search/internal/search"
)

// SetupLogger returns a stderr logger at the given level
func SetupLogger(level string) (*log.Logger, error) {
	logger := log.New(os.Stderr)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// SetupMessageGenerator initializes the message generator selected by the config.
// The returned close function is never nil.
func SetupMessageGenerator(ctx context.Context, cfg MessagesConfig, logger *log.Logger) (messages.Generator, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case "", "template":
		logger.Debug("Using built-in message templates")
		return messages.NewTemplateGenerator(), noop, nil

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("openai api key is required when using OpenAI messages")
		}
		openaiConfig := messages.NewOpenAIConfig().
			WithAPIKey(cfg.OpenAIAPIKey).
			WithModelName(cfg.OpenAIModel).
			WithLogger(logger)
		if cfg.OpenAIEndpoint != "" {
			openaiConfig = openaiConfig.WithEndpoint(cfg.OpenAIEndpoint)
		}
		generator, err := messages.NewOpenAIGenerator(openaiConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI message generator: %w", err)
		}
		logger.Info("Using OpenAI-compatible API for messages", "model", openaiConfig.ModelName, "endpoint", openaiConfig.Endpoint)
		return generator, noop, nil

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil, fmt.Errorf("gemini api key is required when using Gemini messages")
		}
		geminiConfig := messages.NewGeminiConfig().
			WithAPIKey(cfg.GeminiAPIKey).
			WithLogger(logger)
		if cfg.GeminiModel != "" {
			geminiConfig = geminiConfig.WithModelName(cfg.GeminiModel)
		}
		generator, err := messages.NewGeminiGenerator(ctx, geminiConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini message generator: %w", err)
		}
		logger.Info("Using Gemini API for messages", "model", geminiConfig.ModelName)
		return generator, generator.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown message provider: %s", cfg.Provider)
	}
}

// Runtime holds the wired components shared by the binaries
type Runtime struct {
	Config *config.Config
	DB     *db.DB
	Rates  *rates.Provider
	Engine *search.Engine

	closers []func() error
}

// Close releases the generator and the database
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetupDatabase loads the engine configuration and opens the store
func SetupDatabase(common CommonConfig, logger *log.Logger) (*config.Config, *db.DB, error) {
	cfg, err := config.Load(common.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.New(common.DataDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, database, nil
}

// SetupRuntime wires configuration, store, rate cache, message generator and engine
func SetupRuntime(ctx context.Context, common CommonConfig, msgs MessagesConfig, logger *log.Logger) (*Runtime, error) {
	cfg, database, err := SetupDatabase(common, logger)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, DB: database, closers: []func() error{database.Close}}

	memory, err := cache.NewMemory(cfg.Rates.CacheSize)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create rate cache: %w", err)
	}
	rt.Rates = rates.NewProvider(database, memory, logger, cfg.RatesOptions())

	generator, closeGenerator, err := SetupMessageGenerator(ctx, msgs, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeGenerator)

	opts := append(cfg.EngineOptions(), search.WithGenerator(generator))
	rt.Engine = search.NewEngine(database, rt.Rates, logger, opts...)
	return rt, nil
}
