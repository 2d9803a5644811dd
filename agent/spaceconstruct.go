package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	acontext "github.com/slyt3/Acontext"
)

const (
	defaultSpaceMaxIterations = 16
	defaultLsDepth            = 3
)

// SpaceCtx is the tool context of the space-construction agent. It survives
// the whole run: the path cache and inserted set accumulate across turns.
type SpaceCtx struct {
	store      acontext.Store
	indexer    *acontext.Indexer
	spaceID    string
	taskIDs    []string
	candidates []acontext.CandidateData
	inserted   map[int]bool
	// paths caches resolved "/"-rooted paths; nil id marks the root.
	paths map[string]*string
}

// findBlock resolves a path to its block, going through the cache first.
func (c *SpaceCtx) findBlock(ctx context.Context, path string) (acontext.Block, error) {
	key := "/" + strings.Join(splitPath(path), "/")
	if id, ok := c.paths[key]; ok {
		if id == nil {
			return acontext.Block{}, acontext.BadRequest("the root path is not a block")
		}
		return c.store.FetchBlock(ctx, *id)
	}
	b, err := resolvePathBlock(ctx, c.store, c.spaceID, path)
	if err != nil {
		return acontext.Block{}, err
	}
	id := b.ID
	c.paths[key] = &id
	return b, nil
}

// SpaceConstructor runs the space-construction agent over one batch of SOP
// candidates.
type SpaceConstructor struct {
	store    acontext.Store
	provider acontext.Provider
	indexer  *acontext.Indexer
	logger   *slog.Logger
}

// SpaceConstructorOption customizes a SpaceConstructor.
type SpaceConstructorOption func(*SpaceConstructor)

// WithSpaceLogger sets the logger.
func WithSpaceLogger(l *slog.Logger) SpaceConstructorOption {
	return func(c *SpaceConstructor) { c.logger = l }
}

// NewSpaceConstructor builds a SpaceConstructor over the given store,
// provider and indexer.
func NewSpaceConstructor(store acontext.Store, provider acontext.Provider, indexer *acontext.Indexer, opts ...SpaceConstructorOption) *SpaceConstructor {
	c := &SpaceConstructor{store: store, provider: provider, indexer: indexer, logger: nopLogger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run files the SOP candidates into the space. taskIDs pairs with sops by
// index; each successfully inserted candidate marks its task digested in the
// exit hook so redelivery of the same event no-ops. maxIterations <= 0 uses
// the default.
func (c *SpaceConstructor) Run(ctx context.Context, spaceID string, taskIDs []string, sops []acontext.SOPData, maxIterations int) error {
	if maxIterations <= 0 {
		maxIterations = defaultSpaceMaxIterations
	}
	candidates := make([]acontext.CandidateData, len(sops))
	for i, sop := range sops {
		candidates[i] = acontext.CandidateData{Type: acontext.BlockTypeSOP, Data: sop}
	}

	engine := &acontext.Engine[SpaceCtx]{
		Name:          "space_construct",
		Provider:      c.provider,
		SystemPrompt:  spaceSystemPrompt,
		Pool:          c.pool(),
		MaxIterations: maxIterations,
		BuildCtx: func(context.Context) (*SpaceCtx, error) {
			return &SpaceCtx{
				store:      c.store,
				indexer:    c.indexer,
				spaceID:    spaceID,
				taskIDs:    taskIDs,
				candidates: candidates,
				inserted:   make(map[int]bool),
				paths:      map[string]*string{"/": nil},
			}, nil
		},
		OnExit: func(ctx context.Context, tc *SpaceCtx) error {
			if tc == nil {
				return nil
			}
			indices := make([]int, 0, len(tc.inserted))
			for i := range tc.inserted {
				indices = append(indices, i)
			}
			sort.Ints(indices)
			for _, i := range indices {
				if i >= len(tc.taskIDs) {
					continue
				}
				if err := tc.store.SetTaskSpaceDigested(ctx, tc.taskIDs[i]); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: c.logger,
	}
	return engine.Run(ctx, packSpaceInput(packCandidateDataList(candidates)))
}

func (c *SpaceConstructor) pool() *acontext.ToolPool[SpaceCtx] {
	return acontext.NewToolPool(
		lsTool(),
		createPathTool("create_folder", acontext.BlockTypeFolder),
		createPathTool("create_page", acontext.BlockTypePage),
		insertCandidateTool(),
		acontext.FinishTool[SpaceCtx](),
		acontext.ReportThinkingTool[SpaceCtx](c.logger, nil),
	)
}

// softError turns expected store failures into tool-response content so the
// LLM can correct its path, while real faults still abort the run.
func softError(err error) (string, error) {
	switch acontext.KindOf(err) {
	case acontext.KindNotFound, acontext.KindBadRequest, acontext.KindValidation:
		return err.Error(), nil
	}
	return "", err
}

func lsTool() acontext.Tool[SpaceCtx] {
	return acontext.Tool[SpaceCtx]{
		Def: acontext.ToolDefinition{
			Name:        "ls",
			Description: "List pages and folders",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"folder_path": {"type": "string", "description": "The folder to list. Root is '/'"},
					"depth": {"type": "integer", "description": "Maximum path depth to list. Default to 3"}
				},
				"required": ["folder_path"]
			}`),
		},
		Handler: func(ctx context.Context, tc *SpaceCtx, args json.RawMessage) (string, error) {
			var params struct {
				FolderPath string `json:"folder_path"`
				Depth      *int   `json:"depth"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("ls: bad arguments: %v", err)
			}
			depth := defaultLsDepth
			if params.Depth != nil {
				depth = *params.Depth
			}
			folderPath := params.FolderPath
			if strings.TrimSpace(folderPath) == "" {
				folderPath = "/"
			}

			id, err := resolvePathBlockID(ctx, tc.store, tc.spaceID, folderPath)
			if err != nil {
				return softError(err)
			}
			paths, err := tc.store.ListPathsUnder(ctx, tc.spaceID, id, depth)
			if err != nil {
				return softError(err)
			}

			base := "/" + strings.Join(splitPath(folderPath), "/")
			lines := make([]string, 0, len(paths))
			for rel, blockID := range paths {
				full := joinPath(base, rel)
				bid := blockID
				tc.paths[full] = &bid
				lines = append(lines, full)
			}
			if len(lines) == 0 {
				return fmt.Sprintf("No pages or folders under %s", base), nil
			}
			sort.Strings(lines)
			return strings.Join(lines, "\n"), nil
		},
	}
}

func createPathTool(name, blockType string) acontext.Tool[SpaceCtx] {
	return acontext.Tool[SpaceCtx]{
		Def: acontext.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Create a %s under an existing folder path.", blockType),
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"parent_path": {"type": "string", "description": "The folder to create under. Root is '/'"},
					"title": {"type": "string", "description": "Title of the new ` + blockType + `"}
				},
				"required": ["parent_path", "title"]
			}`),
		},
		Handler: func(ctx context.Context, tc *SpaceCtx, args json.RawMessage) (string, error) {
			var params struct {
				ParentPath string `json:"parent_path"`
				Title      string `json:"title"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("%s: bad arguments: %v", name, err)
			}
			if strings.TrimSpace(params.Title) == "" {
				return "", acontext.Validation("title is required")
			}
			parentPath := params.ParentPath
			if strings.TrimSpace(parentPath) == "" {
				parentPath = "/"
			}
			parentID, err := resolvePathBlockID(ctx, tc.store, tc.spaceID, parentPath)
			if err != nil {
				return softError(err)
			}
			b, err := tc.store.CreatePathBlock(ctx, tc.spaceID, params.Title, nil, parentID, blockType)
			if err != nil {
				return "", err
			}
			if err := tc.indexer.IndexBlock(ctx, b); err != nil {
				return "", err
			}
			full := joinPath(parentPath, params.Title)
			id := b.ID
			tc.paths[full] = &id
			return fmt.Sprintf("Created %s %s", blockType, full), nil
		},
	}
}

func insertCandidateTool() acontext.Tool[SpaceCtx] {
	return acontext.Tool[SpaceCtx]{
		Def: acontext.ToolDefinition{
			Name:        "insert_candidate_data_as_content",
			Description: "Insert candidate data to a page as a block.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"page_path": {"type": "string", "description": "The absolute path of page to insert"},
					"after_block_index": {"type": "integer", "description": "Block Index in this page to insert after. 0 means inserting at the first position"},
					"candidate_index": {"type": "integer", "description": "The candidate index of the data to insert"}
				},
				"required": ["page_path", "after_block_index", "candidate_index"]
			}`),
		},
		Handler: func(ctx context.Context, tc *SpaceCtx, args json.RawMessage) (string, error) {
			var raw map[string]json.RawMessage
			if err := json.Unmarshal(args, &raw); err != nil {
				return "", acontext.Validationf("insert_candidate_data_as_content: bad arguments: %v", err)
			}
			for _, key := range []string{"page_path", "after_block_index", "candidate_index"} {
				if _, ok := raw[key]; !ok {
					return key + " is required", nil
				}
			}
			var params struct {
				PagePath        string `json:"page_path"`
				AfterBlockIndex int    `json:"after_block_index"`
				CandidateIndex  int    `json:"candidate_index"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("insert_candidate_data_as_content: bad arguments: %v", err)
			}

			if params.CandidateIndex < 0 || params.CandidateIndex >= len(tc.candidates) {
				return fmt.Sprintf("Invalid candidate_index: %d", params.CandidateIndex), nil
			}
			if tc.inserted[params.CandidateIndex] {
				return fmt.Sprintf("Candidate data %d already inserted", params.CandidateIndex), nil
			}
			page, err := tc.findBlock(ctx, params.PagePath)
			if err != nil {
				if content, soft := softError(err); soft == nil {
					return fmt.Sprintf("Page %s not found: %s", params.PagePath, content), nil
				}
				return "", err
			}
			if page.Type != acontext.BlockTypePage {
				return fmt.Sprintf("Path %s is not a page (type: %s)", params.PagePath, page.Type), nil
			}
			blockID, err := tc.store.InsertBlockToPage(ctx, tc.spaceID, page.ID, tc.candidates[params.CandidateIndex], params.AfterBlockIndex)
			if err != nil {
				if content, soft := softError(err); soft == nil {
					return fmt.Sprintf("Failed to insert candidate data: %s", content), nil
				}
				return "", err
			}
			if err := tc.indexer.IndexBlockID(ctx, blockID); err != nil {
				return "", err
			}
			// Recorded only after a successful write and index: a failed
			// attempt leaves the task undigested so a later run can retry it.
			tc.inserted[params.CandidateIndex] = true
			return fmt.Sprintf("Inserted candidate data %d to page %s after block index %d",
				params.CandidateIndex, params.PagePath, params.AfterBlockIndex), nil
		},
	}
}
