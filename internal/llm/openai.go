package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 15 * time.Second
)

// ErrNoAPIKey is returned when a provider is built without a key.
var ErrNoAPIKey = errors.New("llm: api key not configured")

// ProviderConfig configures one OpenAI-compatible endpoint. BaseURL points
// the client at a gateway instead of api.openai.com.
type ProviderConfig struct {
	Name       string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIProvider calls the Chat Completions API in JSON-object mode.
type OpenAIProvider struct {
	name    string
	model   string
	timeout time.Duration
	client  openai.Client
}

func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	p := &OpenAIProvider{
		name:    strings.TrimSpace(cfg.Name),
		model:   strings.TrimSpace(cfg.Model),
		timeout: cfg.Timeout,
		client:  openai.NewClient(opts...),
	}
	if p.name == "" {
		p.name = "openai"
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	return p, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Categorize(ctx context.Context, req CategorizeRequest) (CategoryGuess, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(req)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return CategoryGuess{}, fmt.Errorf("%s: chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return CategoryGuess{}, fmt.Errorf("%s: %w", p.name, ErrNoGuess)
	}
	guess, err := decodeGuess(resp.Choices[0].Message.Content)
	if err != nil {
		return CategoryGuess{}, fmt.Errorf("%s: parse categorize: %w", p.name, err)
	}
	return guess, nil
}
