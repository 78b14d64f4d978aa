package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/types"
	openai "github.com/sashabaranov/go-openai"
)

const explainTool = "explain_search"

// ChatClient is the part of the OpenAI client used for explanations
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig holds configuration for an OpenAI-compatible message generator
type OpenAIConfig struct {
	APIKey      string
	Endpoint    string // e.g. https://api.openai.com/v1 or https://openrouter.ai/api/v1
	ModelName   string
	Timeout     time.Duration
	MaxAttempts int
	Logger      *log.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:    "https://api.openai.com/v1",
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithEndpoint(endpoint string) OpenAIConfig {
	c.Endpoint = endpoint
	return c
}
func (c OpenAIConfig) WithModelName(modelName string) OpenAIConfig {
	c.ModelName = modelName
	return c
}
func (c OpenAIConfig) WithTimeout(timeout time.Duration) OpenAIConfig {
	c.Timeout = timeout
	return c
}
func (c OpenAIConfig) WithMaxAttempts(attempts int) OpenAIConfig {
	c.MaxAttempts = attempts
	return c
}
func (c OpenAIConfig) WithLogger(logger *log.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// OpenAIGenerator asks an OpenAI-compatible model to call the explain_search tool.
// Any failure other than cancellation falls back to the built-in templates.
type OpenAIGenerator struct {
	config OpenAIConfig
	client ChatClient
	logger *log.Logger
}

func NewOpenAIGenerator(config OpenAIConfig) (*OpenAIGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.Endpoint
	return newOpenAIGenerator(config, openai.NewClientWithConfig(cfg)), nil
}

func newOpenAIGenerator(config OpenAIConfig, client ChatClient) *OpenAIGenerator {
	return &OpenAIGenerator{config: config, client: client, logger: config.Logger}
}

func (g *OpenAIGenerator) Explain(ctx context.Context, req Request) (types.Explanation, error) {
	start := time.Now()
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	e, err := g.runLoop(ctx, req)
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

// runLoop performs tool calling until the model returns a valid explanation,
// feeding validation errors back as user messages.
func (g *OpenAIGenerator) runLoop(ctx context.Context, req Request) (types.Explanation, error) {
	f := openai.FunctionDefinition{
		Name:        explainTool,
		Description: "Return the message and suggested actions shown to the guest",
		Parameters:  explanationSchema,
		Strict:      true,
	}
	tools := []openai.Tool{{Type: openai.ToolTypeFunction, Function: &f}}

	chatMessages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, languageName(req.Language))},
		{Role: openai.ChatMessageRoleUser, Content: describe(req)},
	}

	var lastError error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return types.Explanation{}, err
		}
		g.logger.Debug("Requesting explanation", "attempt", attempt, "model", g.config.ModelName)

		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:      g.config.ModelName,
			Messages:   chatMessages,
			Tools:      tools,
			ToolChoice: "auto",
		})
		if err != nil {
			lastError = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastError = fmt.Errorf("no choices in response")
			continue
		}

		message := resp.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			lastError = fmt.Errorf("no tool calls in response")
			continue
		}

		toolCall := message.ToolCalls[0]
		if toolCall.Function.Name != explainTool {
			lastError = fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
		} else {
			e, err := parseExplanation(toolCall.Function.Arguments)
			if err == nil {
				return e, nil
			}
			lastError = err
		}

		g.logger.Debug("Tool call validation failed", "arguments", toolCall.Function.Arguments, "error", lastError)
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			Content: "Previous tool call arguments:\n" + toolCall.Function.Arguments + "\n" +
				"Error: " + lastError.Error() + "\n" +
				"Please call " + explainTool + " again with a non-empty message.",
		})
	}

	return types.Explanation{}, fmt.Errorf("failed to get valid tool call after %d attempts: %w", g.config.MaxAttempts, lastError)
}
