package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	acontext "github.com/slyt3/Acontext"
)

const defaultSOPMaxIterations = 3

// SOPPublisher emits the SOP-complete event that triggers space
// construction. The bus client implements it in production.
type SOPPublisher interface {
	PublishSOPComplete(ctx context.Context, projectID, spaceID, taskID string, sop acontext.SOPData) error
}

// SOPCtx is the tool context of the SOP-abstraction agent.
type SOPCtx struct {
	store     acontext.Store
	publisher SOPPublisher
	projectID string
	spaceID   string
	task      acontext.Task
}

// SOPAbstractor runs the SOP-abstraction agent over one completed task.
type SOPAbstractor struct {
	store         acontext.Store
	provider      acontext.Provider
	publisher     SOPPublisher
	maxIterations int
	logger        *slog.Logger
}

// SOPAbstractorOption customizes a SOPAbstractor.
type SOPAbstractorOption func(*SOPAbstractor)

// WithSOPMaxIterations overrides the LLM turn budget.
func WithSOPMaxIterations(n int) SOPAbstractorOption {
	return func(a *SOPAbstractor) { a.maxIterations = n }
}

// WithSOPLogger sets the logger.
func WithSOPLogger(l *slog.Logger) SOPAbstractorOption {
	return func(a *SOPAbstractor) { a.logger = l }
}

// NewSOPAbstractor builds a SOPAbstractor. The publisher receives complex
// SOPs; easy tasks are digested directly.
func NewSOPAbstractor(store acontext.Store, provider acontext.Provider, publisher SOPPublisher, opts ...SOPAbstractorOption) *SOPAbstractor {
	a := &SOPAbstractor{
		store:         store,
		provider:      provider,
		publisher:     publisher,
		maxIterations: defaultSOPMaxIterations,
		logger:        nopLogger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run scores one success task and either digests it (easy) or publishes its
// abstracted SOP for space construction. customRules extends the built-in
// complexity scoring from the project config.
func (a *SOPAbstractor) Run(ctx context.Context, projectID, spaceID string, current acontext.Task, previous []acontext.Task, messages []acontext.Message, customRules []string) error {
	desc, prefs, raw := packTaskData(current, messages)
	input := packSOPInput(packPreviousTaskContext(previous, current), desc, prefs, raw)

	engine := &acontext.Engine[SOPCtx]{
		Name:          "sop_abstract",
		Provider:      a.provider,
		SystemPrompt:  sopSystemPrompt(customRules),
		Pool:          a.pool(),
		MaxIterations: a.maxIterations,
		BuildCtx: func(context.Context) (*SOPCtx, error) {
			return &SOPCtx{
				store:     a.store,
				publisher: a.publisher,
				projectID: projectID,
				spaceID:   spaceID,
				task:      current,
			}, nil
		},
		TerminalAfter: map[string]bool{"submit_sop": true},
		Logger:        a.logger,
	}
	return engine.Run(ctx, input)
}

func (a *SOPAbstractor) pool() *acontext.ToolPool[SOPCtx] {
	return acontext.NewToolPool(
		submitSOPTool(),
		acontext.ReportThinkingTool[SOPCtx](a.logger, func(ctx context.Context, tc *SOPCtx, thinking string) error {
			return tc.store.AppendSOPThinking(ctx, tc.task.ID, thinking)
		}),
	)
}

func submitSOPTool() acontext.Tool[SOPCtx] {
	return acontext.Tool[SOPCtx]{
		Def: acontext.ToolDefinition{
			Name:        "submit_sop",
			Description: "Submit the abstracted SOP, or an empty one with is_easy_task for trivial tasks.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"is_easy_task": {"type": "boolean", "description": "True when the task scored < 2 and carries no reusable SOP"},
					"sop": {
						"type": "object",
						"properties": {
							"use_when": {"type": "string", "description": "Concrete conditions under which this SOP applies"},
							"preferences": {"type": "string", "description": "User preferences critical to future execution, or empty"},
							"tool_sops": {
								"type": "array",
								"items": {
									"type": "object",
									"properties": {
										"tool_name": {"type": "string"},
										"action": {"type": "string"}
									},
									"required": ["tool_name", "action"]
								}
							}
						},
						"required": ["use_when", "preferences", "tool_sops"]
					}
				},
				"required": ["is_easy_task", "sop"]
			}`),
		},
		Handler: func(ctx context.Context, tc *SOPCtx, args json.RawMessage) (string, error) {
			var params struct {
				IsEasyTask bool             `json:"is_easy_task"`
				SOP        acontext.SOPData `json:"sop"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("submit_sop: bad arguments: %v", err)
			}
			// An easy or contentless submission commits nothing to the space;
			// the task is digested directly so it is not retried.
			if params.IsEasyTask || params.SOP.Empty() {
				if err := tc.store.SetTaskSpaceDigested(ctx, tc.task.ID); err != nil {
					return "", err
				}
				return "Task skipped as easy, no SOP recorded", nil
			}
			if err := params.SOP.Validate(); err != nil {
				return "", err
			}
			if err := tc.publisher.PublishSOPComplete(ctx, tc.projectID, tc.spaceID, tc.task.ID, params.SOP); err != nil {
				return "", err
			}
			return "SOP submitted", nil
		},
	}
}
