package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider against the hosted Claude API. It is
// the secondary provider in the failover pair: the
// Selector routes here only after the primary (Ollama) has failed once in
// this process.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider builds a provider over the given model id, reading
// ANTHROPIC_API_KEY from the environment the way the SDK's default client
// option does.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: anthropic.Model(model)}
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + string(p.model) }

// Generate sends prompt as a single user turn. temperature is clamped to
// the SDK's [0,1] range; the check pipeline always calls with 0.1.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if temperature < 0 {
		temperature = 0
	} else if temperature > 1 {
		temperature = 1
	}
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   1024,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: generate: %w", err)
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

// Available issues a minimal, cheap completion request and reports whether
// the API answered at all; it is only consulted by the startup probe of
// the configured primary, and on-demand by
// admin tooling that wants to check the secondary before switching back.
func (p *AnthropicProvider) Available(ctx context.Context) bool {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	return err == nil
}
