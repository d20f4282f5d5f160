// internal/context/engine.go
package context

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/labkeeper/internal/types"
	"github.com/user/labkeeper/pkg/llm"
)

// Engine assembles token-budgeted prompts for the LLM. History is trimmed
// to the input budget so long sessions cannot blow the model's context
// window.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	tmpl      *template.Template
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// maxTokens is the model's context window size; reserve is held back for
// the model's response.
func New(maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}
	tmpl, err := template.New("system").Parse(DefaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		tmpl:      tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// PromptData feeds the system prompt template.
type PromptData struct {
	Time    string
	Session string
	Tools   string
}

// BuildPrompt assembles a token-budgeted prompt from session history.
func (e *Engine) BuildPrompt(session *types.SessionIndex, events []*types.Event, toolNames []string) ([]llm.Message, error) {
	var buf bytes.Buffer
	err := e.tmpl.Execute(&buf, PromptData{
		Time:    time.Now().Format(time.RFC3339),
		Session: string(session.SessionID),
		Tools:   strings.Join(toolNames, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	sysPrompt := buf.String()

	inputBudget := e.maxTokens - e.reserve
	remaining := inputBudget - e.countTokens(sysPrompt)

	// Walk history newest-first so trimming drops the oldest turns.
	var kept []llm.Message
	usedTokens := 0
	for i := len(events) - 1; i >= 0; i-- {
		msg, ok := eventToMessage(events[i])
		if !ok {
			continue
		}
		msgTokens := e.countTokens(msg.Content)
		for _, tc := range msg.Tools {
			msgTokens += e.countTokens(tc.Function.Name)
			msgTokens += e.countTokens(string(tc.Function.Arguments))
		}
		if usedTokens+msgTokens > remaining {
			break
		}
		kept = append(kept, msg)
		usedTokens += msgTokens
	}

	messages := make([]llm.Message, 0, 1+len(kept))
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	return messages, nil
}

// eventToMessage maps a stored event to a chat message. Confirmation and
// error events are bookkeeping, not conversation; they are skipped.
func eventToMessage(event *types.Event) (llm.Message, bool) {
	switch event.Kind {
	case types.EventUserMessage:
		var p types.TextPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return llm.Message{}, false
		}
		return llm.Message{Role: "user", Content: p.Text}, true

	case types.EventAssistantMessage:
		var p types.TextPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return llm.Message{}, false
		}
		return llm.Message{Role: "assistant", Content: p.Text}, true

	case types.EventToolCall:
		var p types.ToolCallPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return llm.Message{}, false
		}
		return llm.Message{
			Role: "assistant",
			Tools: []llm.ToolCall{{
				ID: p.CallID,
				Function: llm.FunctionCall{
					Name:      p.Tool,
					Arguments: p.Arguments,
				},
			}},
		}, true

	case types.EventToolResult:
		var p types.ToolResultPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return llm.Message{}, false
		}
		return llm.Message{
			Role:    "tool",
			Content: p.Result,
			Tools: []llm.ToolCall{{
				ID:       p.CallID,
				Function: llm.FunctionCall{Name: p.Tool},
			}},
		}, true

	default:
		return llm.Message{}, false
	}
}
