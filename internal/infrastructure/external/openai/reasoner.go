package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

// Config for the OpenAI reasoner
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Reasoner implements port.Reasoner using the OpenAI chat completion API
type Reasoner struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewReasoner creates a new OpenAI reasoner
func NewReasoner(cfg Config, logger *zap.Logger) *Reasoner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Reasoner{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Reason sends one system and one user message in JSON mode and returns the
// raw content. Transport and API errors are reported as provider errors.
func (r *Reasoner) Reason(ctx context.Context, prompt, systemInstruction string, temperature float32) (string, error) {
	r.logger.Debug("Calling OpenAI",
		zap.String("model", r.model),
		zap.Int("prompt_chars", len(prompt)))

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: temperature,
		MaxTokens:   r.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemInstruction,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		r.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", fmt.Errorf("%w: OpenAI API call failed: %v", entity.ErrExternalProvider, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from OpenAI", entity.ErrExternalProvider)
	}

	content := resp.Choices[0].Message.Content
	r.logger.Debug("OpenAI response received",
		zap.Int("content_chars", len(content)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return content, nil
}

var _ port.Reasoner = (*Reasoner)(nil)
