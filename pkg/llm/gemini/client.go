// Package gemini implements the llm.Provider interface on top of the
// Google Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/user/labkeeper/pkg/llm"
)

// Client implements llm.Provider for the Gemini API. Rate-limited calls are
// retried per the configured RetryPolicy.
type Client struct {
	client *genai.Client
	config *llm.Config
	retry  *llm.RetryPolicy
}

// New creates a Gemini client with the given configuration.
func New(ctx context.Context, config *llm.Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	retry := config.Retry
	if retry == nil {
		retry = llm.DefaultRetryPolicy()
	}
	return &Client{client: client, config: config, retry: retry}, nil
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	system, contents, err := toContents(messages)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.config.Temperature > 0 {
		temp := c.config.Temperature
		cfg.Temperature = &temp
	}
	if c.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: json.RawMessage(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var resp *genai.GenerateContentResponse
	err = c.retry.Execute(func() error {
		var callErr error
		resp, callErr = c.client.Models.GenerateContent(ctx, c.config.Model, contents, cfg)
		return callErr
	}, statusOf)
	if err != nil {
		return nil, fmt.Errorf("gemini call: %w", err)
	}

	return fromResponse(resp)
}

// statusOf extracts the HTTP status code from a genai error, 0 if none.
func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// toContents converts provider-neutral messages to genai contents,
// splitting off the system prompt.
func toContents(messages []llm.Message) (string, []*genai.Content, error) {
	var system string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content

		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case "assistant":
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.Tools {
				var args map[string]any
				if len(tc.Function.Arguments) > 0 {
					if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
						return "", nil, fmt.Errorf("decode tool call args: %w", err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case "tool":
			for _, tc := range msg.Tools {
				contents = append(contents, &genai.Content{
					Role: genai.RoleUser,
					Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
						ID:       tc.ID,
						Name:     tc.Function.Name,
						Response: map[string]any{"result": msg.Content},
					}}},
				})
			}

		default:
			return "", nil, fmt.Errorf("unknown message role %q", msg.Role)
		}
	}
	return system, contents, nil
}

// fromResponse converts a genai response to the provider-neutral form.
func fromResponse(resp *genai.GenerateContentResponse) (*llm.Response, error) {
	out := &llm.Response{}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("encode function call args: %w", err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = part.FunctionCall.Name
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID: id,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				},
			})
		}
	}
	return out, nil
}
