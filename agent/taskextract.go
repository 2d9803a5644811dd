// Package agent implements the LLM agents of the core: task extraction from
// flushed messages, SOP abstraction from completed tasks, space construction
// from SOP candidates, and agentic experience search. All four share the
// acontext loop engine and express their behavior as tool pools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	acontext "github.com/slyt3/Acontext"
)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	defaultTaskMaxIterations = 3
	defaultProgressNum       = 6
)

// TaskCtx is the shared tool context of the task-extraction agent. It is
// rebuilt after every mutating tool so later siblings see the current task
// list.
type TaskCtx struct {
	store      acontext.Store
	projectID  string
	sessionID  string
	tasks      []acontext.Task
	messageIDs []string
}

// taskByOrder finds a task from the prompt's task_order.
func (c *TaskCtx) taskByOrder(order int) (acontext.Task, error) {
	for _, t := range c.tasks {
		if t.Order == order {
			return t, nil
		}
	}
	return acontext.Task{}, acontext.Validationf("task with task_order=%d not found", order)
}

// resolveMessageIDs maps prompt message indices to message ids.
func (c *TaskCtx) resolveMessageIDs(indices []int) ([]string, error) {
	if len(indices) == 0 {
		return nil, acontext.Validation("message_indices must not be empty")
	}
	ids := make([]string, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(c.messageIDs) {
			return nil, acontext.Validationf("invalid message index: %d", i)
		}
		ids = append(ids, c.messageIDs[i])
	}
	return ids, nil
}

// TaskExtractor runs the task-extraction agent over one flush batch.
type TaskExtractor struct {
	store         acontext.Store
	provider      acontext.Provider
	maxIterations int
	progressNum   int
	logger        *slog.Logger
}

// TaskExtractorOption customizes a TaskExtractor.
type TaskExtractorOption func(*TaskExtractor)

// WithTaskMaxIterations overrides the LLM turn budget.
func WithTaskMaxIterations(n int) TaskExtractorOption {
	return func(e *TaskExtractor) { e.maxIterations = n }
}

// WithTaskProgressNum overrides how many previous progress lines the prompt
// carries.
func WithTaskProgressNum(n int) TaskExtractorOption {
	return func(e *TaskExtractor) { e.progressNum = n }
}

// WithTaskLogger sets the logger.
func WithTaskLogger(l *slog.Logger) TaskExtractorOption {
	return func(e *TaskExtractor) { e.logger = l }
}

// NewTaskExtractor builds a TaskExtractor over the given store and provider.
func NewTaskExtractor(store acontext.Store, provider acontext.Provider, opts ...TaskExtractorOption) *TaskExtractor {
	e := &TaskExtractor{
		store:         store,
		provider:      provider,
		maxIterations: defaultTaskMaxIterations,
		progressNum:   defaultProgressNum,
		logger:        nopLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run analyzes one batch of flushed messages, creating and updating tasks
// and linking messages to them.
func (e *TaskExtractor) Run(ctx context.Context, projectID, sessionID string, messages []acontext.Message) error {
	tasks, err := e.store.FetchCurrentTasks(ctx, sessionID)
	if err != nil {
		return err
	}
	messageIDs := make([]string, len(messages))
	for i, m := range messages {
		messageIDs[i] = m.ID
	}

	input := packTaskInput(
		packPreviousProgressSection(tasks, e.progressNum),
		packCurrentMessageWithIDs(messages),
		packTaskSection(tasks),
	)

	engine := &acontext.Engine[TaskCtx]{
		Name:          "task_extract",
		Provider:      e.provider,
		SystemPrompt:  taskSystemPrompt,
		Pool:          e.pool(),
		MaxIterations: e.maxIterations,
		BuildCtx: func(ctx context.Context) (*TaskCtx, error) {
			current, err := e.store.FetchCurrentTasks(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return &TaskCtx{
				store:      e.store,
				projectID:  projectID,
				sessionID:  sessionID,
				tasks:      current,
				messageIDs: messageIDs,
			}, nil
		},
		FreshCtxAfter: map[string]bool{
			"insert_task":             true,
			"update_task":             true,
			"append_messages_to_task": true,
		},
		Logger: e.logger,
	}
	return engine.Run(ctx, input)
}

func (e *TaskExtractor) pool() *acontext.ToolPool[TaskCtx] {
	return acontext.NewToolPool(
		insertTaskTool(),
		updateTaskTool(),
		appendMessagesToPlanningTool(),
		appendMessagesToTaskTool(),
		acontext.FinishTool[TaskCtx](),
		acontext.ReportThinkingTool[TaskCtx](e.logger, nil),
	)
}

func insertTaskTool() acontext.Tool[TaskCtx] {
	return acontext.Tool[TaskCtx]{
		Def: acontext.ToolDefinition{
			Name:        "insert_task",
			Description: "Insert a new task after an existing task_order.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"after_order": {"type": "integer", "description": "Insert the new task after this task_order. 0 means inserting at the front"},
					"task_description": {"type": "string", "description": "What the task is and its purpose"}
				},
				"required": ["after_order", "task_description"]
			}`),
		},
		Handler: func(ctx context.Context, tc *TaskCtx, args json.RawMessage) (string, error) {
			var params struct {
				AfterOrder      *int   `json:"after_order"`
				TaskDescription string `json:"task_description"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("insert_task: bad arguments: %v", err)
			}
			if params.AfterOrder == nil {
				return "", acontext.Validation("after_order is required")
			}
			if strings.TrimSpace(params.TaskDescription) == "" {
				return "", acontext.Validation("task_description is required")
			}
			t, err := tc.store.InsertTask(ctx, tc.projectID, tc.sessionID, *params.AfterOrder,
				acontext.TaskData{TaskDescription: params.TaskDescription}, acontext.TaskPending)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Inserted task at task_order=%d", t.Order), nil
		},
	}
}

func updateTaskTool() acontext.Tool[TaskCtx] {
	return acontext.Tool[TaskCtx]{
		Def: acontext.ToolDefinition{
			Name:        "update_task",
			Description: "Update an existing task's description or status.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_order": {"type": "integer", "description": "The task_order of the task to update"},
					"task_description": {"type": "string", "description": "New task description"},
					"task_status": {"type": "string", "enum": ["pending", "running", "success", "failed"], "description": "New task status"}
				},
				"required": ["task_order"]
			}`),
		},
		Handler: func(ctx context.Context, tc *TaskCtx, args json.RawMessage) (string, error) {
			var params struct {
				TaskOrder       *int    `json:"task_order"`
				TaskDescription *string `json:"task_description"`
				TaskStatus      *string `json:"task_status"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("update_task: bad arguments: %v", err)
			}
			if params.TaskOrder == nil {
				return "", acontext.Validation("task_order is required")
			}
			if params.TaskDescription == nil && params.TaskStatus == nil {
				return "", acontext.Validation("nothing to update: give task_description or task_status")
			}
			t, err := tc.taskByOrder(*params.TaskOrder)
			if err != nil {
				return "", err
			}
			upd := acontext.TaskUpdate{Description: params.TaskDescription}
			if params.TaskStatus != nil {
				status := acontext.TaskStatus(*params.TaskStatus)
				if !acontext.ValidTaskStatus(status) {
					return "", acontext.Validationf("invalid task status: %s", *params.TaskStatus)
				}
				upd.Status = &status
			}
			if _, err := tc.store.UpdateTask(ctx, t.ID, upd); err != nil {
				return "", err
			}
			return fmt.Sprintf("Updated task task_order=%d", t.Order), nil
		},
	}
}

func appendMessagesToTaskTool() acontext.Tool[TaskCtx] {
	return acontext.Tool[TaskCtx]{
		Def: acontext.ToolDefinition{
			Name:        "append_messages_to_task",
			Description: "Link messages to a task and append a progress summary.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_order": {"type": "integer", "description": "The task_order of the task to append to"},
					"message_indices": {"type": "array", "items": {"type": "integer"}, "description": "Message ids from the Current Message section"},
					"progress_summary": {"type": "string", "description": "Concise first-person state of the task after these messages"},
					"user_preference_and_infos": {"type": "string", "description": "User preferences or infos extracted from these messages, if any"}
				},
				"required": ["task_order", "message_indices", "progress_summary"]
			}`),
		},
		Handler: func(ctx context.Context, tc *TaskCtx, args json.RawMessage) (string, error) {
			var params struct {
				TaskOrder       *int    `json:"task_order"`
				MessageIndices  []int   `json:"message_indices"`
				ProgressSummary string  `json:"progress_summary"`
				UserPreference  *string `json:"user_preference_and_infos"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("append_messages_to_task: bad arguments: %v", err)
			}
			if params.TaskOrder == nil {
				return "", acontext.Validation("task_order is required")
			}
			if strings.TrimSpace(params.ProgressSummary) == "" {
				return "", acontext.Validation("progress_summary is required")
			}
			t, err := tc.taskByOrder(*params.TaskOrder)
			if err != nil {
				return "", err
			}
			ids, err := tc.resolveMessageIDs(params.MessageIndices)
			if err != nil {
				return "", err
			}
			if err := tc.store.AppendMessagesToTask(ctx, ids, t.ID); err != nil {
				return "", err
			}
			pref := params.UserPreference
			if pref != nil && strings.TrimSpace(*pref) == "" {
				pref = nil
			}
			if err := tc.store.AppendProgressToTask(ctx, t.ID, params.ProgressSummary, pref); err != nil {
				return "", err
			}
			return fmt.Sprintf("Appended %d messages to task task_order=%d", len(ids), t.Order), nil
		},
	}
}

func appendMessagesToPlanningTool() acontext.Tool[TaskCtx] {
	return acontext.Tool[TaskCtx]{
		Def: acontext.ToolDefinition{
			Name:        "append_messages_to_planning_section",
			Description: "Link planning/requirement messages to the session's planning section.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"message_indices": {"type": "array", "items": {"type": "integer"}, "description": "Message ids from the Current Message section"}
				},
				"required": ["message_indices"]
			}`),
		},
		Handler: func(ctx context.Context, tc *TaskCtx, args json.RawMessage) (string, error) {
			var params struct {
				MessageIndices []int `json:"message_indices"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("append_messages_to_planning_section: bad arguments: %v", err)
			}
			ids, err := tc.resolveMessageIDs(params.MessageIndices)
			if err != nil {
				return "", err
			}
			if err := tc.store.AppendMessagesToPlanningSection(ctx, tc.projectID, tc.sessionID, ids); err != nil {
				return "", err
			}
			return fmt.Sprintf("Appended %d messages to planning section", len(ids)), nil
		},
	}
}
