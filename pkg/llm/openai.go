package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/paoliniluis/similarity/pkg/config"
)

// OpenAIProvider backs chat completions with an OpenAI-compatible API,
// including local servers that expose the same surface.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider against cfg.APIBase when set.
func NewOpenAIProvider(cfg *config.LLMConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg)}
}

var _ Provider = (*OpenAIProvider)(nil)

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion returned no choices")
	}

	// Some OpenAI-compatible servers report prompt cache hits through
	// prompt_tokens_details rather than a dedicated flag.
	cacheHit := resp.Usage.PromptTokensDetails != nil && resp.Usage.PromptTokensDetails.CachedTokens > 0

	return &Response{
		Content:        resp.Choices[0].Message.Content,
		TokensSent:     resp.Usage.PromptTokens,
		TokensReceived: resp.Usage.CompletionTokens,
		CacheHit:       cacheHit,
		ResponseID:     resp.ID,
		Model:          resp.Model,
	}, nil
}
