package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/labkeeper/internal/filter"
	"github.com/user/labkeeper/internal/runtime"
)

// InferFilters resolves a natural-language selection criterion into a
// structured filter map via the filter resolver.
type InferFilters struct {
	resolver filter.Resolver
}

func NewInferFilters(resolver filter.Resolver) *InferFilters {
	return &InferFilters{resolver: resolver}
}

func (t *InferFilters) Name() string { return "infer_filters" }
func (t *InferFilters) Description() string {
	return "Infer structured SQL filters from a natural-language criterion for delete or search operations"
}
func (t *InferFilters) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"criteria": {"type": "string", "description": "The user's selection criterion in natural language"}
		},
		"required": ["criteria"]
	}`)
}

func (t *InferFilters) Execute(ctx context.Context, _ *runtime.ToolContext, args json.RawMessage) (string, error) {
	var params struct {
		Criteria string `json:"criteria"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Criteria == "" {
		return "", fmt.Errorf("criteria is required")
	}

	m, err := t.resolver.Resolve(ctx, params.Criteria)
	if err != nil {
		var resolveErr *filter.ResolveError
		if errors.As(err, &resolveErr) {
			// Input errors are surfaced to the model (and operator)
			// verbatim, with no retry.
			out, _ := json.Marshal(map[string]any{
				"error":  string(resolveErr.Reason),
				"detail": resolveErr.Message,
			})
			return string(out), nil
		}
		return "", err
	}

	out, err := json.Marshal(map[string]any{"filters": m})
	if err != nil {
		return "", fmt.Errorf("encode filters: %w", err)
	}
	return string(out), nil
}
