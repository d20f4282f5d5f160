// internal/filter/resolver.go
package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/labdb"
	"github.com/user/labkeeper/pkg/llm"
)

// Resolver converts a natural-language selection criterion into a Map, or
// fails with a *ResolveError.
type Resolver interface {
	Resolve(ctx context.Context, text string) (Map, error)
}

// LLMResolver infers filters with a Gemini call and validates the result
// against the closed vocabulary before handing it to any caller.
type LLMResolver struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewLLMResolver creates a resolver backed by the given provider.
func NewLLMResolver(provider llm.Provider, logger *zap.Logger) *LLMResolver {
	return &LLMResolver{provider: provider, logger: logger}
}

// resolverReply is the JSON contract the inference prompt demands.
type resolverReply struct {
	Filters map[string]any `json:"filters"`
	Error   *struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

// Resolve infers a filter map from free-form text. Out-of-vocabulary keys
// in the model's answer are an unsupported_fields error; the map is never
// truncated to fit.
func (r *LLMResolver) Resolve(ctx context.Context, text string) (Map, error) {
	messages := []llm.Message{
		{Role: "system", Content: inferencePrompt()},
		{Role: "user", Content: text},
	}
	resp, err := r.provider.Complete(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("filter inference: %w", err)
	}

	reply, err := parseReply(resp.Content)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, &ResolveError{
			Reason:  normalizeReason(reply.Error.Reason),
			Message: reply.Error.Message,
		}
	}

	m := Map(reply.Filters)
	if err := Validate(m); err != nil {
		return nil, err
	}
	r.logger.Info("filters inferred",
		zap.Int("fields", len(m)),
		zap.Any("filters", m))
	return m, nil
}

// normalizeReason maps the model's reason string onto the closed taxonomy.
// Anything unrecognized collapses to ambiguous so callers branching on
// Reason only ever see documented variants.
func normalizeReason(raw string) Reason {
	r := Reason(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case ReasonAmbiguous, ReasonIncomplete, ReasonUnsupportedFields, ReasonOffTopic:
		return r
	}
	return ReasonAmbiguous
}

func parseReply(content string) (*resolverReply, error) {
	raw := strings.TrimSpace(content)
	// Models occasionally fence JSON despite instructions.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var reply resolverReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, &ResolveError{
			Reason:  ReasonAmbiguous,
			Message: fmt.Sprintf("could not parse inferred filters: %v", err),
		}
	}
	return &reply, nil
}

// inferencePrompt builds the system prompt for filter inference, embedding
// the closed field vocabulary.
func inferencePrompt() string {
	vocab, err := labdb.LoadVocabulary()
	fields := "organism, protein"
	if err == nil {
		fields = strings.Join(vocab.Filters, ", ")
	}
	return fmt.Sprintf(`You infer SQL filters from user requests for delete or search operations on a lab data management database.

Convert the user's natural-language criterion into a filter object mapping field names to values. The only supported field names are:

%s

Use the EXACT field names above; no synonyms, no case variations. Use the user's values verbatim, except:
1. date: "YYYYMMDD" as a string (e.g. "20230915")
2. exposure_time, time_interval: seconds, as a number
3. concentration_unit, dye_concentration_unit: abbreviations like "nM", "uM", "mM"

Omit any field the user did not mention.

Respond with a single JSON object and nothing else (no code fences, no prose):
- On success: {"filters": {"organism": "E.coli", "protein": "DnaA"}}
- If the criterion is ambiguous: {"error": {"reason": "ambiguous", "message": "The provided criteria is ambiguous. Please provide more specific details."}}
- If fields are named without values: {"error": {"reason": "incomplete", "message": "The provided criteria is incomplete. Please provide values for the specified fields."}}
- If unsupported fields are requested: {"error": {"reason": "unsupported_fields", "message": "The provided criteria includes unsupported fields. Please use only the supported fields."}}
- If the request is unrelated to filter inference: {"error": {"reason": "off_topic", "message": "I am only allowed to infer filters for database operations."}}`, fields)
}
