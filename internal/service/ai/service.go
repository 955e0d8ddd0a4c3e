package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"shariahguide/internal/config"
)

// CandidateGenerator sends a prompt to a hosted model and returns the text of
// every candidate it produced, in the order the provider listed them.
type CandidateGenerator interface {
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// NewGenerator builds the generator for the named provider. Clients are
// created on first use, so a missing API key only fails the calls.
func NewGenerator(provider string, provCfg config.ProviderConfig) (CandidateGenerator, error) {
	modelName := provCfg.Model
	if modelName == "" {
		modelName = config.DefaultModel
	}
	switch provider {
	case "gemini":
		return &GenaiGenerator{model: modelName, apiKey: provCfg.APIKey, baseURL: provCfg.BaseURL}, nil
	case "gemini-eino", "openai", "claude":
		return &ChatModelGenerator{
			factory: func(ctx context.Context) (model.BaseChatModel, error) {
				return newChatModel(ctx, provider, modelName, provCfg)
			},
		}, nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// GenaiGenerator talks to the Gemini API directly so all candidates are visible.
type GenaiGenerator struct {
	model   string
	apiKey  string
	baseURL string

	mu     sync.Mutex
	client *genai.Client
}

func (g *GenaiGenerator) Generate(ctx context.Context, prompt string) ([]string, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	candidates := make([]string, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			candidates = append(candidates, "")
			continue
		}
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part != nil && !part.Thought {
				text.WriteString(part.Text)
			}
		}
		candidates = append(candidates, text.String())
	}
	return candidates, nil
}

func (g *GenaiGenerator) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	cfg := &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// ChatModelGenerator adapts an eino chat model; it yields a single candidate.
type ChatModelGenerator struct {
	factory func(ctx context.Context) (model.BaseChatModel, error)

	mu        sync.Mutex
	chatModel model.BaseChatModel
}

// NewChatModelGenerator wraps an already constructed chat model.
func NewChatModelGenerator(chatModel model.BaseChatModel) *ChatModelGenerator {
	return &ChatModelGenerator{chatModel: chatModel}
}

func (g *ChatModelGenerator) Generate(ctx context.Context, prompt string) ([]string, error) {
	chatModel, err := g.ensureModel(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("generate chat completion: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	return []string{resp.Content}, nil
}

func (g *ChatModelGenerator) ensureModel(ctx context.Context) (model.BaseChatModel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chatModel != nil {
		return g.chatModel, nil
	}
	if g.factory == nil {
		return nil, errors.New("chat model not configured")
	}
	chatModel, err := g.factory(ctx)
	if err != nil {
		return nil, err
	}
	g.chatModel = chatModel
	return chatModel, nil
}

func newChatModel(ctx context.Context, provider, modelName string, provCfg config.ProviderConfig) (model.BaseChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key not configured", provider)
	}
	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini-eino":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}
