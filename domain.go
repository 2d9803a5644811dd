package acontext

import (
	"encoding/json"
	"fmt"
	"strings"
)

// --- Tasks ---

// TaskStatus is the lifecycle state of a task within a session.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// ValidTaskStatus reports whether s is one of the four task states.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskRunning, TaskSuccess, TaskFailed:
		return true
	}
	return false
}

// TaskData is the structured payload of a task.
type TaskData struct {
	TaskDescription string   `json:"task_description"`
	Progresses      []string `json:"progresses,omitempty"`
	UserPreferences []string `json:"user_preferences,omitempty"`
	SOPThinking     string   `json:"sop_thinking,omitempty"`
}

// Task is an ordered unit of work within a session. Order is unique per
// session and dense; order 0 is reserved for the planning task.
type Task struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	Order         int        `json:"task_order"`
	Status        TaskStatus `json:"task_status"`
	Data          TaskData   `json:"task_data"`
	IsPlanning    bool       `json:"is_planning_task"`
	SpaceDigested bool       `json:"space_digested"`
	RawMessageIDs []string   `json:"raw_message_ids,omitempty"`
	CreatedAt     int64      `json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
}

// String renders the task the way agent prompts list it.
func (t Task) String() string {
	return fmt.Sprintf("task_order=%d [%s] %s", t.Order, t.Status, t.Data.TaskDescription)
}

// --- Messages ---

// Part is one element of a message body.
type Part struct {
	// "text" | "tool-call" | "tool-result" | "image" | "file" | "data"
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Message is a conversational turn owned by the outer agent system. The
// core only reads it and re-targets its TaskID.
type Message struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"session_id"`
	Role          string  `json:"role"` // "user", "assistant", "system"
	Parts         []Part  `json:"parts"`
	TaskID        *string `json:"task_id,omitempty"`
	ProcessStatus string  `json:"session_task_process_status"`
	CreatedAt     int64   `json:"created_at"`
}

// Render serializes the message for an agent prompt, truncating each part
// to truncate runes. Format:
//
//	<user>(text) ...
//	<agent>(tool-call) 'tool_name': '...', 'arguments': '...'
//	<agent>(tool-result) 'tool_name': '...', 'result': '...'
func (m Message) Render(truncate int) string {
	tag := "<" + m.Role + ">"
	if m.Role == "assistant" {
		tag = "<agent>"
	}
	var b strings.Builder
	for i, p := range m.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(tag)
		switch p.Type {
		case "tool-call":
			b.WriteString(fmt.Sprintf("(tool-call) 'tool_name': %q, 'arguments': %q",
				metaString(p.Meta, "tool_name"), Truncate(metaString(p.Meta, "arguments"), truncate)))
		case "tool-result":
			b.WriteString(fmt.Sprintf("(tool-result) 'tool_name': %q, 'result': %q",
				metaString(p.Meta, "tool_name"), Truncate(metaString(p.Meta, "result"), truncate)))
		default:
			b.WriteString("(" + p.Type + ") " + Truncate(p.Text, truncate))
		}
	}
	return b.String()
}

// ToolNames returns the distinct tool names invoked by tool-call parts,
// in first-seen order.
func (m Message) ToolNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, p := range m.Parts {
		if p.Type != "tool-call" {
			continue
		}
		name := metaString(p.Meta, "tool_name")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

// Truncate cuts s to at most n runes, appending a marker when content was
// dropped. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "[...truncated]"
}

// --- Blocks ---

const (
	BlockTypeFolder = "folder"
	BlockTypePage   = "page"
	BlockTypeText   = "text"
	BlockTypeSOP    = "sop"
)

// PathBlockTypes are the navigable tree nodes; ContentBlockTypes carry
// payload and live under pages.
var (
	PathBlockTypes    = []string{BlockTypeFolder, BlockTypePage}
	ContentBlockTypes = []string{BlockTypeSOP, BlockTypeText}
)

// IsPathBlockType reports whether t is folder or page.
func IsPathBlockType(t string) bool {
	return t == BlockTypeFolder || t == BlockTypePage
}

// IsContentBlockType reports whether t is sop or text.
func IsContentBlockType(t string) bool {
	return t == BlockTypeSOP || t == BlockTypeText
}

// IsValidBlockType reports whether t is one of the four block types.
func IsValidBlockType(t string) bool {
	switch t {
	case BlockTypeFolder, BlockTypePage, BlockTypeText, BlockTypeSOP:
		return true
	}
	return false
}

// Block is a node of the space tree.
type Block struct {
	ID         string         `json:"id"`
	SpaceID    string         `json:"space_id"`
	ParentID   *string        `json:"parent_id,omitempty"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Props      map[string]any `json:"props"`
	Sort       int            `json:"sort"`
	IsArchived bool           `json:"is_archived"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// ValidateBlockParent checks the parent-type rules:
//   - folder, page: parent is nil or a folder
//   - sop, text: parent is a page
func ValidateBlockParent(blockType string, parent *Block) error {
	if !IsValidBlockType(blockType) {
		return Validationf("invalid block type: %s", blockType)
	}
	if parent == nil {
		if !IsPathBlockType(blockType) {
			return Validationf("block type %q cannot exist at root level", blockType)
		}
		return nil
	}
	switch parent.Type {
	case BlockTypeFolder:
		if !IsPathBlockType(blockType) {
			return Validationf("block type %q cannot be a child of folder", blockType)
		}
	case BlockTypePage:
		if IsPathBlockType(blockType) {
			return Validationf("block type %q cannot be a child of page", blockType)
		}
	default:
		return Validationf("block type %q cannot have children", parent.Type)
	}
	return nil
}

// BlockEmbedding is one vector attached to a block. A block may carry
// several embeddings (title, content) distinguished by phase.
type BlockEmbedding struct {
	ID        string    `json:"id"`
	BlockID   string    `json:"block_id"`
	Phase     string    `json:"phase"`
	Embedding []float32 `json:"-"`
	CreatedAt int64     `json:"created_at"`
}

// SearchHit pairs a block with its cosine distance to a query.
type SearchHit struct {
	Block    Block
	Distance float64
}

// --- SOPs and tool references ---

// SOPStep is one templatized tool action in an SOP.
type SOPStep struct {
	ToolName string `json:"tool_name"`
	Action   string `json:"action"`
}

// SOPData is the value form of a Standard Operating Procedure.
type SOPData struct {
	UseWhen     string    `json:"use_when"`
	Preferences string    `json:"preferences"`
	ToolSOPs    []SOPStep `json:"tool_sops"`
}

// Validate rejects SOPs that carry neither preferences nor tool steps, and
// steps with blank tool names.
func (s SOPData) Validate() error {
	if strings.TrimSpace(s.Preferences) == "" && len(s.ToolSOPs) == 0 {
		return Validation("sop data is empty: needs preferences or tool_sops")
	}
	for _, step := range s.ToolSOPs {
		if strings.TrimSpace(step.ToolName) == "" {
			return Validation("sop step has empty tool name")
		}
	}
	return nil
}

// Empty reports whether the SOP carries no usable content. An easy-task
// submission is empty by construction.
func (s SOPData) Empty() bool {
	return strings.TrimSpace(s.Preferences) == "" && len(s.ToolSOPs) == 0
}

// NormalizeToolName lowercases and trims a tool name. ToolReference rows
// are unique per (project, normalized name).
func NormalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ToolReference is a per-project named tool seen in SOPs.
type ToolReference struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// ToolSOP links an SOP block to one tool it invokes, with the templatized
// action. Sort preserves step order within the SOP.
type ToolSOP struct {
	ID              string `json:"id"`
	SOPBlockID      string `json:"sop_block_id"`
	ToolReferenceID string `json:"tool_reference_id"`
	Action          string `json:"action"`
	Sort            int    `json:"sort"`
}

// CandidateData is one unit the space-construction agent may insert.
type CandidateData struct {
	Type string  `json:"type"` // currently always "sop"
	Data SOPData `json:"data"`
}

// --- Tenancy ---

// Project is the tenant root.
type Project struct {
	ID        string          `json:"id"`
	Configs   json.RawMessage `json:"configs,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// ProjectConfig is the parsed form of Project.Configs with defaults applied.
type ProjectConfig struct {
	SpaceConstructMaxIterations int      `json:"default_space_construct_agent_max_iterations"`
	SOPCustomScoringRules       []string `json:"sop_agent_custom_scoring_rules,omitempty"`
}

// Config parses the project's raw config blob, applying defaults for
// missing fields. A nil or invalid blob yields pure defaults.
func (p Project) Config() ProjectConfig {
	cfg := ProjectConfig{SpaceConstructMaxIterations: 16}
	if len(p.Configs) > 0 {
		_ = json.Unmarshal(p.Configs, &cfg)
	}
	if cfg.SpaceConstructMaxIterations <= 0 {
		cfg.SpaceConstructMaxIterations = 16
	}
	return cfg
}

// Space is a per-project container of blocks.
type Space struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	CreatedAt int64  `json:"created_at"`
}

// Session is a conversation thread. SpaceID is set at most once; once a
// session is linked to a space the link is immutable.
type Session struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	SpaceID   *string `json:"space_id,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}
