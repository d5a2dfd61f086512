package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-sleepcoach/core"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures the Claude client.
type AnthropicConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string

	// MaxRetries is passed to the SDK; 0 keeps the SDK default.
	MaxRetries int
}

// AnthropicClient completes conversations with the Claude Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a Claude-backed Completer.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client, model: model}
}

// leadingAssistantPrefix labels assistant turns moved into the system prompt.
const leadingAssistantPrefix = "Earlier assistant reply: "

// Complete sends messages to Claude. System messages become system blocks in
// order; user and assistant messages form the conversation. The Messages API
// expects the conversation to open with a user turn, so assistant turns that
// precede the first user message (left behind when older history was
// summarized) are sent as system blocks instead.
func (c *AnthropicClient) Complete(ctx context.Context, messages []core.Message, opts Options) (string, error) {
	var system []anthropic.TextBlockParam
	var convo []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case core.RoleAssistant:
			if len(convo) == 0 {
				system = append(system, anthropic.TextBlockParam{Text: leadingAssistantPrefix + m.Content})
				continue
			}
			convo = append(convo, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			convo = append(convo, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   opts.MaxTokens,
		Messages:    convo,
		Temperature: anthropic.Float(opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	log.Debugf("[LLM] Claude used %d input / %d output tokens", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return strings.TrimSpace(text.String()), nil
}
