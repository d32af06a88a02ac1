// Package langchain provides the text-generation and embedding halves of the
// AI gateway through langchaingo, so the model provider stays switchable
// without touching pipeline code.
package langchain

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider       Provider `json:"provider"`
	APIKey         string   `json:"api_key"`
	BaseURL        string   `json:"base_url,omitempty"`
	Model          string   `json:"model,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Temperature    float64  `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
}

// Connector wraps one provider's generation model and embedder. It implements
// ai.Generator and ai.Embedder.
type Connector struct {
	provider Provider
	llm      llms.Model
	embedder embeddings.Embedder
	options  ConnectorOptions
}

// NewConnector creates a new connector for the specified provider.
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating AI connector")

	var (
		model    llms.Model
		embedder embeddings.Embedder
		err      error
	)

	switch options.Provider {
	case ProviderGemini:
		model, embedder, err = createGeminiModel(ctx, options)
	case ProviderOpenAI:
		model, embedder, err = createOpenAIModel(ctx, options)
	case ProviderOllama:
		model, embedder, err = createOllamaModel(ctx, options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{
		provider: options.Provider,
		llm:      model,
		embedder: embedder,
		options:  options,
	}, nil
}

func createGeminiModel(ctx context.Context, options ConnectorOptions) (llms.Model, embeddings.Embedder, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(options.Model))
	}
	if options.EmbeddingModel != "" {
		opts = append(opts, googleai.WithDefaultEmbeddingModel(options.EmbeddingModel))
	}

	model, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Gemini model: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Gemini embedder: %w", err)
	}
	return model, embedder, nil
}

func createOpenAIModel(_ context.Context, options ConnectorOptions) (llms.Model, embeddings.Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, openai.WithModel(options.Model))
	}
	if options.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(options.EmbeddingModel))
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, nil, err
	}
	return model, embedder, nil
}

func createOllamaModel(_ context.Context, options ConnectorOptions) (llms.Model, embeddings.Embedder, error) {
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:11434"
	}

	opts := []ollama.Option{
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.Model),
	}

	model, err := ollama.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embeddings.NewEmbedder(model)
	if err != nil {
		return nil, nil, err
	}
	return model, embedder, nil
}

// Generate calls the LLM with the given prompt and returns the response text.
func (c *Connector) Generate(ctx context.Context, prompt string) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}

	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOptions...)
}

// Embed returns the embedding vector for the given text.
func (c *Connector) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embedder.EmbedQuery(ctx, text)
}

// GetProvider returns the provider of this connector
func (c *Connector) GetProvider() Provider {
	return c.provider
}

// ModelVersion identifies the generation model, recorded on meeting notes.
func (c *Connector) ModelVersion() string {
	if c.options.Model != "" {
		return fmt.Sprintf("%s/%s", c.provider, c.options.Model)
	}
	return string(c.provider)
}
