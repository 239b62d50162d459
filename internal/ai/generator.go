package ai

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/plantops/defect-triage/internal/config"
)

// Generator abstracts the text-generation service so tests can substitute a
// deterministic fake. A transport failure is a hard error surfaced to the
// caller; malformed content is handled downstream by the classifier.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnthropicGenerator calls the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
}

// NewAnthropicGenerator builds a generator from config.
func NewAnthropicGenerator(cfg config.AnthropicConfig) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Complete sends the prompt as a single user message and returns the first
// text block of the response.
func (g *AnthropicGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if g.cfg.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout())
		defer cancel()
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.cfg.Model),
		MaxTokens:   int64(g.cfg.MaxTokens),
		Temperature: anthropic.Float(g.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	if len(msg.Content) == 0 {
		return "", errors.New("empty response from generation service")
	}
	return msg.Content[0].Text, nil
}
