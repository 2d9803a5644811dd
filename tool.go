package acontext

import (
	"context"
	"encoding/json"
	"log/slog"
)

// ToolFinish and ToolReportThinking are the universal tools every agent
// pool carries. The loop engine treats ToolFinish as a termination signal.
const (
	ToolFinish         = "finish"
	ToolReportThinking = "report_thinking"
)

// Handler executes one tool call. The returned string is the tool-response
// content shown to the LLM on the next turn. A validation error is fed back
// to the LLM; any other error aborts the agent run.
type Handler[C any] func(ctx context.Context, tc *C, args json.RawMessage) (string, error)

// Tool pairs an OpenAI function-tool schema with its typed handler.
type Tool[C any] struct {
	Def     ToolDefinition
	Handler Handler[C]
}

// ToolPool maps tool names to tools for one agent, preserving registration
// order for the schema list sent to the LLM.
type ToolPool[C any] struct {
	order []string
	tools map[string]Tool[C]
}

// NewToolPool builds a pool from the given tools. Duplicate names panic:
// pools are assembled at startup and a duplicate is a programming error.
func NewToolPool[C any](tools ...Tool[C]) *ToolPool[C] {
	p := &ToolPool[C]{tools: make(map[string]Tool[C], len(tools))}
	for _, t := range tools {
		if _, dup := p.tools[t.Def.Name]; dup {
			panic("acontext: duplicate tool " + t.Def.Name)
		}
		p.order = append(p.order, t.Def.Name)
		p.tools[t.Def.Name] = t
	}
	return p
}

// Definitions returns the tool schemas in registration order.
func (p *ToolPool[C]) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(p.order))
	for _, name := range p.order {
		defs = append(defs, p.tools[name].Def)
	}
	return defs
}

// Get looks up a tool by name.
func (p *ToolPool[C]) Get(name string) (Tool[C], bool) {
	t, ok := p.tools[name]
	return t, ok
}

// FinishTool returns the universal finish tool. Its handler never runs;
// the loop engine intercepts the name and terminates the turn.
func FinishTool[C any]() Tool[C] {
	return Tool[C]{
		Def: ToolDefinition{
			Name:        ToolFinish,
			Description: "Call when all actions are done to end the run.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		Handler: func(context.Context, *C, json.RawMessage) (string, error) {
			return "ok", nil
		},
	}
}

// ReportThinkingTool returns the universal report_thinking tool. The
// thinking text is logged; hook, when non-nil, may persist it.
func ReportThinkingTool[C any](logger *slog.Logger, hook func(ctx context.Context, tc *C, thinking string) error) Tool[C] {
	return Tool[C]{
		Def: ToolDefinition{
			Name:        ToolReportThinking,
			Description: "Report your step-by-step thinking before calling other tools.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"thinking": {"type": "string", "description": "Your brief thinking"}
				},
				"required": ["thinking"]
			}`),
		},
		Handler: func(ctx context.Context, tc *C, args json.RawMessage) (string, error) {
			var params struct {
				Thinking string `json:"thinking"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", Validationf("report_thinking: bad arguments: %v", err)
			}
			if logger != nil {
				logger.Debug("agent thinking", "thinking", params.Thinking)
			}
			if hook != nil {
				if err := hook(ctx, tc, params.Thinking); err != nil {
					return "", err
				}
			}
			return "ok", nil
		},
	}
}
