package llm

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/paoliniluis/similarity/pkg/config"
)

// AnthropicProvider backs chat completions with the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider builds a provider, honoring cfg.APIBase when set.
func NewAnthropicProvider(cfg *config.LLMConfig) *AnthropicProvider {
	var opts []anthropic.ClientOption
	if cfg.APIBase != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.APIBase))
	}
	return &AnthropicProvider{client: anthropic.NewClient(cfg.APIKey, opts...)}
}

var _ Provider = (*AnthropicProvider)(nil)

func (p *AnthropicProvider) CreateChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	// Anthropic takes the system prompt as a top-level field, not a message.
	var system string
	var messages []anthropic.Message
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantTextMessage(m.Content))
		default:
			messages = append(messages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	temperature := req.Temperature
	apiReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(req.Model),
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	resp, err := p.client.CreateMessages(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat completion: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			content = *block.Text
			break
		}
	}

	return &Response{
		Content:        content,
		TokensSent:     resp.Usage.InputTokens,
		TokensReceived: resp.Usage.OutputTokens,
		CacheHit:       resp.Usage.CacheReadInputTokens > 0,
		ResponseID:     resp.ID,
		Model:          string(resp.Model),
	}, nil
}
