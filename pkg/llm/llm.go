// Package llm provides a provider-agnostic chat completion gateway with
// model aliasing, request pacing, retries and vocabulary injection.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/retry"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Model aliases resolved against the configured concrete model names.
const (
	ModelFast = "fast"
	ModelSlow = "slow"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a chat completion call. Model takes an alias ("fast",
// "slow") or a concrete model name, which is passed through unchanged.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	JSONMode    bool
}

// Response carries the completion content plus usage accounting.
type Response struct {
	Content        string
	TokensSent     int
	TokensReceived int
	CacheHit       bool
	ResponseID     string
	Model          string
}

// Provider is a concrete chat completion backend.
type Provider interface {
	CreateChatCompletion(ctx context.Context, req *Request) (*Response, error)
}

// KeywordInjector enriches user-authored text with vocabulary context
// before it reaches the model. Implemented by the keywords package.
type KeywordInjector interface {
	Inject(ctx context.Context, text string) (string, error)
}

// Client wraps a Provider with alias resolution, pacing and retries.
type Client struct {
	provider Provider
	cfg      *config.LLMConfig
	limiter  *rate.Limiter
	injector KeywordInjector
	logger   *zap.Logger
}

// NewClient builds a Client for the configured provider.
func NewClient(cfg *config.LLMConfig, provider Provider, logger *zap.Logger) *Client {
	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 60
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:   logger,
	}
}

// SetKeywordInjector enables vocabulary injection on user messages. Wired
// after construction because the keywords service itself needs a Client
// for definition merging.
func (c *Client) SetKeywordInjector(injector KeywordInjector) {
	c.injector = injector
}

// ResolveModel maps an alias to the configured concrete model name.
// Unknown names pass through so callers can pin exact models.
func (c *Client) ResolveModel(name string) string {
	switch name {
	case ModelFast:
		return c.cfg.FastModel
	case ModelSlow:
		return c.cfg.SlowModel
	default:
		return name
	}
}

// Chat performs a completion with pacing and bounded retries. User messages
// are passed through the keyword injector when one is set.
func (c *Client) Chat(ctx context.Context, req *Request) (*Response, error) {
	resolved := &Request{
		Model:       c.ResolveModel(req.Model),
		Messages:    make([]Message, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONMode:    req.JSONMode,
	}
	copy(resolved.Messages, req.Messages)

	if c.injector != nil {
		for i, msg := range resolved.Messages {
			if msg.Role != RoleUser {
				continue
			}
			enriched, err := c.injector.Inject(ctx, msg.Content)
			if err != nil {
				c.logger.Warn("keyword injection failed, using original message", zap.Error(err))
				continue
			}
			resolved.Messages[i].Content = enriched
		}
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = c.cfg.MaxRetries
	retryCfg.InitialDelay = time.Second

	resp, err := retry.DoWithResult(ctx, retryCfg, func() (*Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.provider.CreateChatCompletion(ctx, resolved)
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if resp.CacheHit {
		resp.TokensReceived = 0
	}
	return resp, nil
}
