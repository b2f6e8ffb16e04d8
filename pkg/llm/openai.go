package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nadermedhet148/sql-insight-engine/pkg/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against an OpenAI-compatible chat
// completions + embeddings API. BaseURL is configurable so the same client
// also speaks to self-hosted/compatible gateways.
type OpenAIClient struct {
	providers *config.LLMProviderRegistry
	clients   map[string]*openai.Client
}

// NewOpenAIClient builds one underlying openai.Client per configured
// provider, each reading its API key from the provider's configured
// environment variable.
func NewOpenAIClient(providers *config.LLMProviderRegistry) (*OpenAIClient, error) {
	clients := make(map[string]*openai.Client)
	for name, p := range providers.GetAll() {
		apiKey := os.Getenv(p.APIKeyEnv)
		cfg := openai.DefaultConfig(apiKey)
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		clients[name] = openai.NewClientWithConfig(cfg)
	}
	return &OpenAIClient{providers: providers, clients: clients}, nil
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	providerCfg, err := c.providers.Get(in.Provider)
	if err != nil {
		return GenerateOutput{}, err
	}
	client, ok := c.clients[providerCfg.Name]
	if !ok {
		return GenerateOutput{}, fmt.Errorf("%w: no client for provider %s", ErrProviderUnavailable, providerCfg.Name)
	}

	temp := in.Temperature
	if temp == 0 {
		temp = providerCfg.Temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       providerCfg.Model,
		Messages:    toOpenAIMessages(in.Messages),
		Temperature: temp,
	}
	if len(in.Tools) > 0 {
		req.Tools = toOpenAITools(in.Tools)
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GenerateOutput{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return GenerateOutput{}, fmt.Errorf("%w: empty response", ErrProviderUnavailable)
	}

	choice := resp.Choices[0].Message
	out := GenerateOutput{
		Content: choice.Content,
		Usage: Usage{
			PromptTokens:   resp.Usage.PromptTokens,
			ResponseTokens: resp.Usage.CompletionTokens,
			TotalTokens:    resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Embed implements Client.
func (c *OpenAIClient) Embed(ctx context.Context, in EmbedInput) ([][]float32, error) {
	providerCfg, err := c.providers.Get(in.Provider)
	if err != nil {
		return nil, err
	}
	client, ok := c.clients[providerCfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no client for provider %s", ErrProviderUnavailable, providerCfg.Name)
	}

	model := providerCfg.EmbedModel
	if model == "" {
		model = providerCfg.Model
	}

	resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: in.Texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params json.RawMessage = json.RawMessage(t.Schema)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
