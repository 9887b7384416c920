// Package llm provides the text generation backends used by the analysis agents.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/diligence/internal/config"
	"github.com/raphaelgruber/diligence/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// generation is one backend response.
type generation struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// backend performs a single system+user completion.
type backend interface {
	generate(ctx context.Context, systemPrompt, userPrompt string) (generation, error)
}

// Model wraps a provider backend for text generation.
type Model struct {
	backend   backend
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
// collector may be nil.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Model, error) {
	var b backend

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		b = langchainBackend{llm: model}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		b = langchainBackend{llm: model}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		b = langchainBackend{llm: model}

	case config.ProviderBedrock:
		bb, err := newBedrockBackend(ctx, cfg.AWSRegion, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		b = bb

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return newModel(b, cfg.LLMModel, collector), nil
}

func newModel(b backend, name string, collector *metrics.Collector) *Model {
	return &Model{backend: b, modelName: name, metrics: collector}
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	gen, err := m.backend.generate(ctx, systemPrompt, userPrompt)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("generation failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("generate with system: %w", wrapFatalError(err))
	}
	if m.metrics != nil {
		m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, gen.InputTokens, gen.OutputTokens)
	}

	slog.Debug("generation complete", "model", m.modelName, "duration_ms", duration.Milliseconds(),
		"input_tokens", gen.InputTokens, "output_tokens", gen.OutputTokens)
	return gen.Text, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// langchainBackend adapts any langchaingo model.
type langchainBackend struct {
	llm llms.Model
}

func (b langchainBackend) generate(ctx context.Context, systemPrompt, userPrompt string) (generation, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := b.llm.GenerateContent(ctx, messages)
	if err != nil {
		return generation{}, err
	}
	if len(response.Choices) == 0 {
		return generation{}, errors.New("no response choices")
	}

	choice := response.Choices[0]
	return generation{
		Text:         choice.Content,
		InputTokens:  tokenCount(choice.GenerationInfo, "InputTokens", "PromptTokens"),
		OutputTokens: tokenCount(choice.GenerationInfo, "OutputTokens", "CompletionTokens"),
	}, nil
}

// tokenCount reads the first numeric value found under keys. Providers
// disagree on naming and type.
func tokenCount(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
