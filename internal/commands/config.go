package commands

// MessagesConfig contains common flag definitions for the message generator
type MessagesConfig struct {
	// Provider is the message generator to use
	Provider string `help:"Message generator to use" default:"template" enum:"template,openai,gemini" env:"MESSAGE_PROVIDER" name:"message-provider"`
	// OpenAIAPIKey is the API key for an OpenAI-compatible endpoint
	OpenAIAPIKey string `help:"OpenAI API key" env:"OPENAI_API_KEY" name:"openai-api-key"`
	// OpenAIEndpoint is the base URL of the OpenAI-compatible API
	OpenAIEndpoint string `help:"OpenAI-compatible API endpoint" env:"OPENAI_ENDPOINT" name:"openai-endpoint"`
	OpenAIModel    string `help:"OpenAI model used for search explanations" default:"gpt-4o-mini" env:"OPENAI_MODEL" name:"openai-model"`
	// GeminiAPIKey is the API key for Gemini
	GeminiAPIKey string `help:"Google Gemini API key" env:"GEMINI_API_KEY"`
	GeminiModel  string `help:"Gemini model used for search explanations" env:"GEMINI_MODEL"`
}

// CommonConfig contains configuration common to all commands
type CommonConfig struct {
	// DataDir is the path to the data directory
	DataDir string `help:"Path to data directory" default:"./data" env:"BOOKING_DATA_DIR"`
	// ConfigFile is the engine configuration, a missing file means defaults
	ConfigFile string `help:"Path to engine configuration file" default:"./booking-search.yaml" name:"config" env:"BOOKING_SEARCH_CONFIG"`
	// LogLevel is the logging level to use
	LogLevel string `help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
}
