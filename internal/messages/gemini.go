package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"github.com/lox/booking-search/internal/types"
	"google.golang.org/api/option"
)

// GeminiConfig holds configuration for the Gemini message generator
type GeminiConfig struct {
	APIKey        string
	ModelName     string
	RetryAttempts uint
	Logger        *log.Logger
}

func NewGeminiConfig() GeminiConfig {
	return GeminiConfig{
		ModelName:     "gemini-2.0-flash",
		RetryAttempts: 3,
	}
}

func (c GeminiConfig) WithAPIKey(apiKey string) GeminiConfig {
	c.APIKey = apiKey
	return c
}
func (c GeminiConfig) WithModelName(modelName string) GeminiConfig {
	c.ModelName = modelName
	return c
}
func (c GeminiConfig) WithRetryAttempts(attempts uint) GeminiConfig {
	c.RetryAttempts = attempts
	return c
}
func (c GeminiConfig) WithLogger(logger *log.Logger) GeminiConfig {
	c.Logger = logger
	return c
}

func (c GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("gemini api key is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

type generateFunc func(ctx context.Context, language, prompt string) (string, error)

// GeminiGenerator asks Gemini for a JSON explanation, falling back to the templates on failure
type GeminiGenerator struct {
	config   GeminiConfig
	client   *genai.Client
	generate generateFunc
	logger   *log.Logger
}

func NewGeminiGenerator(ctx context.Context, config GeminiConfig) (*GeminiGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	g := &GeminiGenerator{config: config, client: client, logger: config.Logger}
	g.generate = func(ctx context.Context, language, prompt string) (string, error) {
		model := client.GenerativeModel(config.ModelName)
		model.ResponseMIMEType = "application/json"
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(fmt.Sprintf(systemPrompt, languageName(language)) +
				"\nRespond with a JSON object with the fields message and suggested_actions.")},
		}
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp)
	}
	return g, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned from Gemini API")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func (g *GeminiGenerator) Explain(ctx context.Context, req Request) (types.Explanation, error) {
	var e types.Explanation
	start := time.Now()
	err := retry.Do(
		func() error {
			raw, err := g.generate(ctx, req.Language, describe(req))
			if err != nil {
				return fmt.Errorf("failed to generate explanation: %w", err)
			}
			e, err = parseExplanation(raw)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(g.config.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("Retrying Gemini explanation request", "attempt", n+1, "max_attempts", g.config.RetryAttempts, "error", err)
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return types.Explanation{}, err
		}
		g.logger.Warn("Falling back to template explanation", "model", g.config.ModelName, "error", err)
		return Template(req), nil
	}
	g.logger.Debug("Generated explanation", "model", g.config.ModelName, "reason", req.Reason, "duration", time.Since(start))
	return e, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
