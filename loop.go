package acontext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// nopLogger discards everything. Used wherever a logger was not supplied.
var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// maxToolResultMessageLen is the maximum rune length for a tool result
// stored in the conversation history during the tool-calling loop. Results
// exceeding this limit are truncated with a marker so the LLM knows content
// was trimmed.
const maxToolResultMessageLen = 100_000

// Engine is the bounded tool-calling loop shared by all agents. C is the
// agent's tool context type (the mutable state handlers read and write).
//
// One run makes at most MaxIterations LLM calls; within a turn, sibling
// tool calls execute strictly in the order the LLM returned them.
type Engine[C any] struct {
	Name         string
	Provider     Provider
	SystemPrompt string
	Pool         *ToolPool[C]

	// MaxIterations bounds the number of LLM turns. Zero means 1.
	MaxIterations int

	// BuildCtx constructs the shared tool context on first use and after
	// invalidation. Nil means handlers receive a nil context pointer.
	BuildCtx func(ctx context.Context) (*C, error)

	// FreshCtxAfter names the tools whose execution invalidates the shared
	// context, forcing a rebuild before the next handler runs.
	FreshCtxAfter map[string]bool

	// TerminalAfter names the tools that end the run once executed
	// (siblings in the same turn still execute). The finish tool is always
	// terminal and its handler is never invoked.
	TerminalAfter map[string]bool

	// OnExit runs after the loop with the last tool context (may be nil if
	// no tool ever ran). Space construction uses it to mark digested tasks.
	OnExit func(ctx context.Context, tc *C) error

	Logger *slog.Logger
}

// Run executes the loop for one initial user message.
func (e *Engine[C]) Run(ctx context.Context, userContent string) error {
	logger := e.Logger
	if logger == nil {
		logger = nopLogger
	}
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}
	tools := e.Pool.Definitions()

	messages := []ChatMessage{
		SystemMessage(e.SystemPrompt),
		UserMessage(userContent),
	}

	var tc *C
	for iter := 0; iter < maxIter; iter++ {
		resp, err := e.Provider.Chat(ctx, ChatRequest{Messages: messages, Tools: tools})
		if err != nil {
			return err
		}
		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			logger.Info("no tool calls, stop iterations", "agent", e.Name, "iteration", iter)
			break
		}

		finish := false
		for _, call := range resp.ToolCalls {
			if call.Name == ToolFinish {
				finish = true
				continue
			}
			tool, ok := e.Pool.Get(call.Name)
			if !ok {
				logger.Warn("unknown tool requested", "agent", e.Name, "tool", call.Name)
				messages = append(messages, ToolResultMessage(call.ID, "tool "+call.Name+" not found"))
				continue
			}
			if tc == nil && e.BuildCtx != nil {
				tc, err = e.BuildCtx(ctx)
				if err != nil {
					return err
				}
			}
			content, err := e.dispatch(ctx, tool, tc, call.Args)
			if err != nil {
				if !IsValidation(err) {
					return err
				}
				// Validation errors go back to the LLM so it can correct
				// its arguments on the next turn. A rejected terminal tool
				// does not end the run; the LLM may retry it.
				logger.Warn("tool rejected arguments", "agent", e.Name, "tool", call.Name, "error", err)
				content = err.Error()
			} else if e.TerminalAfter[call.Name] {
				finish = true
			}
			if call.Name != ToolReportThinking {
				logger.Info("tool call",
					"agent", e.Name,
					"tool", call.Name,
					"args", string(call.Args),
					"result", Truncate(content, 200))
			}
			if len([]rune(content)) > maxToolResultMessageLen {
				content = Truncate(content, maxToolResultMessageLen)
			}
			messages = append(messages, ToolResultMessage(call.ID, content))
			if e.FreshCtxAfter[call.Name] {
				tc = nil
			}
		}
		if finish {
			logger.Info("terminal tool called, exit the loop", "agent", e.Name, "iteration", iter)
			break
		}
	}

	if e.OnExit != nil {
		return e.OnExit(ctx, tc)
	}
	return nil
}

// dispatch runs a handler with panic recovery. A panicking tool surfaces
// as an internal error instead of crashing the consumer process.
func (e *Engine[C]) dispatch(ctx context.Context, tool Tool[C], tc *C, args json.RawMessage) (content string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Internal(fmt.Sprintf("tool %s panic: %v", tool.Def.Name, p), nil)
		}
	}()
	return tool.Handler(ctx, tc, args)
}
