package acontext

import "context"

// TaskUpdate carries optional task mutations; nil fields are left as-is.
type TaskUpdate struct {
	Status      *TaskStatus
	Order       *int
	Description *string
	Data        *TaskData
}

// Store is the persistence boundary of the core. Postgres backs production
// (store/postgres); an in-memory implementation (store/memory) backs tests
// and local development.
type Store interface {
	// Init creates schema objects idempotently.
	Init(ctx context.Context) error
	Close() error

	// --- tenancy ---

	FetchProject(ctx context.Context, projectID string) (Project, error)
	FetchSession(ctx context.Context, sessionID string) (Session, error)

	// --- blocks ---

	// CreatePathBlock creates a folder or page under parentID (nil = root),
	// validating parent-type rules and allocating the next sibling sort.
	CreatePathBlock(ctx context.Context, spaceID, title string, props map[string]any, parentID *string, blockType string) (Block, error)

	// WriteSOPToParent creates an SOP block under a page, upserting one
	// ToolReference per distinct normalized tool name and one ToolSOP row
	// per step. Returns the new block id.
	WriteSOPToParent(ctx context.Context, spaceID, parentID string, sop SOPData) (string, error)

	// InsertBlockToPage inserts a content block at position afterBlockIndex
	// within the page, clamped to the child count, shifting later siblings.
	InsertBlockToPage(ctx context.Context, spaceID, pageID string, data CandidateData, afterBlockIndex int) (string, error)

	FetchBlock(ctx context.Context, blockID string) (Block, error)
	FetchChildrenByTypes(ctx context.Context, spaceID string, parentID *string, types []string) ([]Block, error)

	// ListPathsUnder maps "/"-joined paths (relative to blockID, or the
	// space root when nil) to block ids, covering path blocks only and
	// recursing up to depth folder levels. A non-folder blockID is a
	// bad_request error.
	ListPathsUnder(ctx context.Context, spaceID string, blockID *string, depth int) (map[string]string, error)

	// RenderBlockProps resolves a content block's props for display. For
	// SOP blocks the tool_sops are rebuilt from ToolSOP rows joined with
	// the current ToolReference names, so renames are reflected.
	RenderBlockProps(ctx context.Context, block Block) (map[string]any, error)

	// --- embeddings ---

	UpsertBlockEmbedding(ctx context.Context, blockID, phase string, vec []float32) error

	// SearchBlockEmbeddings returns up to limit (block, distance) pairs
	// ordered by ascending cosine distance, filtered by space, type and
	// threshold, excluding archived blocks. Blocks with several embeddings
	// may appear more than once; callers deduplicate.
	SearchBlockEmbeddings(ctx context.Context, spaceID string, vec []float32, types []string, limit int, threshold float64) ([]SearchHit, error)

	// --- tool references ---

	RenameTools(ctx context.Context, projectID string, renames [][2]string) error
	ListToolNames(ctx context.Context, projectID string) ([]ToolReference, error)

	// --- tasks ---

	FetchTask(ctx context.Context, taskID string) (Task, error)
	FetchPlanningTask(ctx context.Context, sessionID string) (*Task, error)
	// FetchCurrentTasks returns the session's non-planning tasks ordered by
	// ascending task order, with message ids loaded.
	FetchCurrentTasks(ctx context.Context, sessionID string) ([]Task, error)
	// FetchPreviousTasks returns up to limit non-planning tasks with order
	// below beforeOrder, ascending, without message ids.
	FetchPreviousTasks(ctx context.Context, sessionID string, beforeOrder, limit int) ([]Task, error)

	// InsertTask creates a task at afterOrder+1, shifting successors by one
	// under a row lock over the session's tasks.
	InsertTask(ctx context.Context, projectID, sessionID string, afterOrder int, data TaskData, status TaskStatus) (Task, error)
	UpdateTask(ctx context.Context, taskID string, upd TaskUpdate) (Task, error)
	SetTaskSpaceDigested(ctx context.Context, taskID string) error
	AppendMessagesToTask(ctx context.Context, messageIDs []string, taskID string) error
	AppendProgressToTask(ctx context.Context, taskID, progress string, userPreference *string) error
	// AppendMessagesToPlanningSection links messages to the session's
	// planning task, creating it (order 0) if missing.
	AppendMessagesToPlanningSection(ctx context.Context, projectID, sessionID string, messageIDs []string) error
	AppendSOPThinking(ctx context.Context, taskID, thinking string) error

	// CountLearningStatus counts digested and not-yet-digested tasks over
	// the session's non-planning success tasks.
	CountLearningStatus(ctx context.Context, sessionID string) (digested, notDigested int, err error)

	// --- messages ---

	// FetchPendingMessages returns the session's messages not yet consumed
	// by task extraction, in creation order.
	FetchPendingMessages(ctx context.Context, sessionID string) ([]Message, error)
	FetchTaskMessages(ctx context.Context, taskID string) ([]Message, error)
	SetMessagesProcessStatus(ctx context.Context, messageIDs []string, status string) error
}
