package openaicompat

import (
	"encoding/json"

	"github.com/slyt3/Acontext"
)

// ParseResponse converts an OpenAI-format ChatResponse to an acontext
// ChatResponse. It extracts content, tool calls, and usage from choices[0].
func ParseResponse(resp ChatResponse) (acontext.ChatResponse, error) {
	var out acontext.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = acontext.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to acontext ToolCalls.
// OpenAI returns function.arguments as a JSON string; we parse it into
// json.RawMessage. Invalid JSON falls back to an empty object so the tool
// handler can reject it with a proper validation error.
func ParseToolCalls(tcs []ToolCallRequest) []acontext.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]acontext.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, acontext.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
