package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	acontext "github.com/slyt3/Acontext"
)

// Iteration bounds for agentic search. Caller-supplied budgets are clamped
// so one HTTP request cannot pin a worker indefinitely.
const (
	defaultSearchIterations = 16
	maxSearchIterations     = 100
)

// SearchResultBlockItem is one block in a search response. Distance is nil
// for blocks cited by the agent rather than ranked by vector search.
type SearchResultBlockItem struct {
	BlockID  string         `json:"block_id"`
	Title    string         `json:"title"`
	Type     string         `json:"type"`
	Props    map[string]any `json:"props"`
	Distance *float64       `json:"distance"`
}

// ExperienceSearchResult is the response of both search modes. FinalAnswer
// is empty in fast mode.
type ExperienceSearchResult struct {
	CitedBlocks []SearchResultBlockItem `json:"cited_blocks"`
	FinalAnswer string                  `json:"final_answer,omitempty"`
}

// searchCtx is the tool context of the agentic search loop.
type searchCtx struct {
	store    acontext.Store
	searcher *acontext.Searcher
	spaceID  string
	result   *ExperienceSearchResult
}

// ExperienceSearcher answers questions over a space, either by pure vector
// search (fast) or by an LLM-driven loop (agentic).
type ExperienceSearcher struct {
	store    acontext.Store
	searcher *acontext.Searcher
	provider acontext.Provider
	logger   *slog.Logger
}

// ExperienceSearcherOption customizes an ExperienceSearcher.
type ExperienceSearcherOption func(*ExperienceSearcher)

// WithExperienceLogger sets the logger.
func WithExperienceLogger(l *slog.Logger) ExperienceSearcherOption {
	return func(s *ExperienceSearcher) { s.logger = l }
}

// NewExperienceSearcher builds an ExperienceSearcher.
func NewExperienceSearcher(store acontext.Store, searcher *acontext.Searcher, provider acontext.Provider, opts ...ExperienceSearcherOption) *ExperienceSearcher {
	s := &ExperienceSearcher{store: store, searcher: searcher, provider: provider, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fast runs pure vector search over content blocks, reporting distances.
func (s *ExperienceSearcher) Fast(ctx context.Context, spaceID, query string, limit int, threshold *float64) (ExperienceSearchResult, error) {
	var out ExperienceSearchResult
	hits, err := s.searcher.SemanticGrep(ctx, spaceID, query, limit, threshold)
	if err != nil {
		return out, err
	}
	for _, h := range hits {
		item, err := s.blockItem(ctx, h.Block)
		if err != nil {
			return out, err
		}
		d := h.Distance
		item.Distance = &d
		out.CitedBlocks = append(out.CitedBlocks, item)
	}
	return out, nil
}

// Agentic runs the LLM-driven search loop. maxIterations is clamped to
// [1, 100]; <= 0 uses the default.
func (s *ExperienceSearcher) Agentic(ctx context.Context, spaceID, query string, maxIterations int) (ExperienceSearchResult, error) {
	var out ExperienceSearchResult
	engine := &acontext.Engine[searchCtx]{
		Name:          "experience_search",
		Provider:      s.provider,
		SystemPrompt:  searchSystemPrompt,
		Pool:          s.pool(),
		MaxIterations: clampSearchIterations(maxIterations),
		BuildCtx: func(context.Context) (*searchCtx, error) {
			return &searchCtx{store: s.store, searcher: s.searcher, spaceID: spaceID, result: &out}, nil
		},
		TerminalAfter: map[string]bool{"answer": true},
		Logger:        s.logger,
	}
	if err := engine.Run(ctx, packSearchInput(query)); err != nil {
		return out, err
	}
	return out, nil
}

func clampSearchIterations(n int) int {
	if n <= 0 {
		return defaultSearchIterations
	}
	if n > maxSearchIterations {
		return maxSearchIterations
	}
	return n
}

func (s *ExperienceSearcher) blockItem(ctx context.Context, b acontext.Block) (SearchResultBlockItem, error) {
	props, err := s.store.RenderBlockProps(ctx, b)
	if err != nil {
		return SearchResultBlockItem{}, err
	}
	return SearchResultBlockItem{BlockID: b.ID, Title: b.Title, Type: b.Type, Props: props}, nil
}

func (s *ExperienceSearcher) pool() *acontext.ToolPool[searchCtx] {
	return acontext.NewToolPool(
		semanticSearchTool("semantic_glob", "Search folder and page titles by meaning.",
			func(ctx context.Context, tc *searchCtx, query string, limit int, threshold *float64) ([]acontext.SearchHit, error) {
				return tc.searcher.SemanticGlob(ctx, tc.spaceID, query, limit, threshold)
			}),
		semanticSearchTool("semantic_grep", "Search content blocks (SOPs, notes) by meaning.",
			func(ctx context.Context, tc *searchCtx, query string, limit int, threshold *float64) ([]acontext.SearchHit, error) {
				return tc.searcher.SemanticGrep(ctx, tc.spaceID, query, limit, threshold)
			}),
		openPageTool(),
		answerTool(),
		acontext.ReportThinkingTool[searchCtx](s.logger, nil),
	)
}

func semanticSearchTool(name, description string, search func(ctx context.Context, tc *searchCtx, query string, limit int, threshold *float64) ([]acontext.SearchHit, error)) acontext.Tool[searchCtx] {
	return acontext.Tool[searchCtx]{
		Def: acontext.ToolDefinition{
			Name:        name,
			Description: description,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What to search for"},
					"limit": {"type": "integer", "description": "Maximum results. Default 10"},
					"threshold": {"type": "number", "description": "Maximum cosine distance, 0..2. Lower is stricter"}
				},
				"required": ["query"]
			}`),
		},
		Handler: func(ctx context.Context, tc *searchCtx, args json.RawMessage) (string, error) {
			var params struct {
				Query     string   `json:"query"`
				Limit     int      `json:"limit"`
				Threshold *float64 `json:"threshold"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("%s: bad arguments: %v", name, err)
			}
			hits, err := search(ctx, tc, params.Query, params.Limit, params.Threshold)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No matching blocks", nil
			}
			lines := make([]string, 0, len(hits))
			for _, h := range hits {
				props, err := tc.store.RenderBlockProps(ctx, h.Block)
				if err != nil {
					return "", err
				}
				propsJSON, _ := json.Marshal(props)
				lines = append(lines, fmt.Sprintf("block_id=%s type=%s distance=%.3f title=%q props=%s",
					h.Block.ID, h.Block.Type, h.Distance, h.Block.Title, acontext.Truncate(string(propsJSON), 256)))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func openPageTool() acontext.Tool[searchCtx] {
	return acontext.Tool[searchCtx]{
		Def: acontext.ToolDefinition{
			Name:        "open_page",
			Description: "Read all content blocks of a page by its absolute path.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Absolute page path, e.g. '/Projects/Github'"}
				},
				"required": ["path"]
			}`),
		},
		Handler: func(ctx context.Context, tc *searchCtx, args json.RawMessage) (string, error) {
			var params struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("open_page: bad arguments: %v", err)
			}
			page, err := resolvePathBlock(ctx, tc.store, tc.spaceID, params.Path)
			if err != nil {
				return softError(err)
			}
			if page.Type != acontext.BlockTypePage {
				return fmt.Sprintf("Path %s is not a page (type: %s)", params.Path, page.Type), nil
			}
			pageID := page.ID
			children, err := tc.store.FetchChildrenByTypes(ctx, tc.spaceID, &pageID, acontext.ContentBlockTypes)
			if err != nil {
				return "", err
			}
			if len(children) == 0 {
				return fmt.Sprintf("Page %s is empty", params.Path), nil
			}
			lines := make([]string, 0, len(children))
			for i, b := range children {
				props, err := tc.store.RenderBlockProps(ctx, b)
				if err != nil {
					return "", err
				}
				propsJSON, _ := json.Marshal(props)
				lines = append(lines, fmt.Sprintf("<block index=%d block_id=%s type=%s title=%q>%s</block>",
					i, b.ID, b.Type, b.Title, propsJSON))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func answerTool() acontext.Tool[searchCtx] {
	return acontext.Tool[searchCtx]{
		Def: acontext.ToolDefinition{
			Name:        "answer",
			Description: "Submit the final answer with the block ids that support it.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"final_answer": {"type": "string", "description": "The answer to the question"},
					"cited_block_ids": {"type": "array", "items": {"type": "string"}, "description": "Block ids the answer is based on"}
				},
				"required": ["final_answer", "cited_block_ids"]
			}`),
		},
		Handler: func(ctx context.Context, tc *searchCtx, args json.RawMessage) (string, error) {
			var params struct {
				FinalAnswer   string   `json:"final_answer"`
				CitedBlockIDs []string `json:"cited_block_ids"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "", acontext.Validationf("answer: bad arguments: %v", err)
			}
			if strings.TrimSpace(params.FinalAnswer) == "" {
				return "", acontext.Validation("final_answer is required")
			}
			items := make([]SearchResultBlockItem, 0, len(params.CitedBlockIDs))
			for _, id := range params.CitedBlockIDs {
				b, err := tc.store.FetchBlock(ctx, id)
				if err != nil {
					if acontext.KindOf(err) == acontext.KindNotFound {
						return "", acontext.Validationf("cited block %s not found", id)
					}
					return "", err
				}
				props, err := tc.store.RenderBlockProps(ctx, b)
				if err != nil {
					return "", err
				}
				items = append(items, SearchResultBlockItem{BlockID: b.ID, Title: b.Title, Type: b.Type, Props: props})
			}
			tc.result.FinalAnswer = params.FinalAnswer
			tc.result.CitedBlocks = items
			return "Answer recorded", nil
		},
	}
}
