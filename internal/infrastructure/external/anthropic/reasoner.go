package anthropic

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/garyjia/claimflow/internal/application/port"
	"github.com/garyjia/claimflow/internal/domain/entity"
)

const (
	defaultMaxTokens = 1024
	defaultModel     = "claude-sonnet-4-5"
)

// Config for the Anthropic reasoner
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
}

// Reasoner implements port.Reasoner on the Anthropic Messages API
type Reasoner struct {
	client    sdk.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewReasoner creates a new Anthropic reasoner
func NewReasoner(cfg Config, logger *zap.Logger) *Reasoner {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Reasoner{
		client:    sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Reason returns the first text block of the reply
func (r *Reasoner) Reason(ctx context.Context, prompt, systemInstruction string, temperature float32) (string, error) {
	message, err := r.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(r.model),
		MaxTokens:   r.maxTokens,
		Temperature: sdk.Float(float64(temperature)),
		System: []sdk.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		r.logger.Error("Anthropic API call failed", zap.Error(err))
		return "", fmt.Errorf("%w: Anthropic API call failed: %v", entity.ErrExternalProvider, err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			r.logger.Debug("Anthropic response received",
				zap.Int("content_chars", len(block.Text)),
				zap.Int64("input_tokens", message.Usage.InputTokens),
				zap.Int64("output_tokens", message.Usage.OutputTokens))
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in Anthropic response", entity.ErrExternalProvider)
}

var _ port.Reasoner = (*Reasoner)(nil)
