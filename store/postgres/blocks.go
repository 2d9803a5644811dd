package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	acontext "github.com/slyt3/Acontext"
)

// CreatePathBlock creates a folder or page under parentID (nil = root),
// validating parent-type rules and allocating the next sibling sort.
func (s *Store) CreatePathBlock(ctx context.Context, spaceID, title string, props map[string]any, parentID *string, blockType string) (acontext.Block, error) {
	var out acontext.Block

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	parent, err := fetchParent(ctx, tx, spaceID, parentID)
	if err != nil {
		return out, err
	}
	if err := acontext.ValidateBlockParent(blockType, parent); err != nil {
		return out, err
	}

	sort, err := nextSiblingSort(ctx, tx, spaceID, parentID)
	if err != nil {
		return out, err
	}

	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return out, fmt.Errorf("postgres: marshal props: %w", err)
	}

	now := acontext.NowUnix()
	out = acontext.Block{
		ID:        acontext.NewID(),
		SpaceID:   spaceID,
		ParentID:  parentID,
		Type:      blockType,
		Title:     title,
		Props:     props,
		Sort:      sort,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO blocks (id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, FALSE, $8, $9)`,
		out.ID, out.SpaceID, out.ParentID, out.Type, out.Title, string(propsJSON), out.Sort, now, now)
	if err != nil {
		return out, fmt.Errorf("postgres: insert block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return out, nil
}

// WriteSOPToParent creates an SOP block under a page. The block title is the
// SOP's use_when; preferences live in props. Each step upserts a
// ToolReference for its normalized tool name and adds one tool_sops row.
func (s *Store) WriteSOPToParent(ctx context.Context, spaceID, parentID string, sop acontext.SOPData) (string, error) {
	if err := sop.Validate(); err != nil {
		return "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	parent, err := fetchParent(ctx, tx, spaceID, &parentID)
	if err != nil {
		return "", err
	}
	if err := acontext.ValidateBlockParent(acontext.BlockTypeSOP, parent); err != nil {
		return "", err
	}

	projectID, err := spaceProject(ctx, tx, spaceID)
	if err != nil {
		return "", err
	}

	sort, err := nextSiblingSort(ctx, tx, spaceID, &parentID)
	if err != nil {
		return "", err
	}

	propsJSON, err := json.Marshal(map[string]any{"preferences": sop.Preferences})
	if err != nil {
		return "", fmt.Errorf("postgres: marshal props: %w", err)
	}

	now := acontext.NowUnix()
	blockID := acontext.NewID()
	_, err = tx.Exec(ctx,
		`INSERT INTO blocks (id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, 'sop', $4, $5::jsonb, $6, FALSE, $7, $8)`,
		blockID, spaceID, parentID, sop.UseWhen, string(propsJSON), sort, now, now)
	if err != nil {
		return "", fmt.Errorf("postgres: insert sop block: %w", err)
	}

	for i, step := range sop.ToolSOPs {
		name := acontext.NormalizeToolName(step.ToolName)
		var refID string
		err := tx.QueryRow(ctx,
			`INSERT INTO tool_references (id, project_id, name, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (project_id, name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			acontext.NewID(), projectID, name, now).Scan(&refID)
		if err != nil {
			return "", fmt.Errorf("postgres: upsert tool reference: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO tool_sops (id, sop_block_id, tool_reference_id, action, sort)
			 VALUES ($1, $2, $3, $4, $5)`,
			acontext.NewID(), blockID, refID, step.Action, i)
		if err != nil {
			return "", fmt.Errorf("postgres: insert tool sop: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres: commit tx: %w", err)
	}
	return blockID, nil
}

// InsertBlockToPage inserts a content block at position afterBlockIndex
// within the page, clamped to the child count, shifting later siblings by one.
func (s *Store) InsertBlockToPage(ctx context.Context, spaceID, pageID string, data acontext.CandidateData, afterBlockIndex int) (string, error) {
	if data.Type != acontext.BlockTypeSOP {
		return "", acontext.Validationf("unsupported candidate type: %s", data.Type)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Lock the siblings to keep the sort sequence dense under concurrency.
	if _, err := tx.Exec(ctx,
		`SELECT id FROM blocks WHERE space_id = $1 AND parent_id = $2 FOR UPDATE`,
		spaceID, pageID); err != nil {
		return "", fmt.Errorf("postgres: lock siblings: %w", err)
	}

	// afterBlockIndex is the insertion position: 0 is the first slot.
	var siblings int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM blocks WHERE space_id = $1 AND parent_id = $2`,
		spaceID, pageID).Scan(&siblings); err != nil {
		return "", fmt.Errorf("postgres: count siblings: %w", err)
	}
	pos := afterBlockIndex
	if pos < 0 {
		pos = 0
	}
	if pos > siblings {
		pos = siblings
	}

	// Two-phase shift keeps (space_id, parent_id, sort) unique throughout:
	// move the tail to negative sorts, then flip to final positions.
	if _, err := tx.Exec(ctx,
		`UPDATE blocks SET sort = -(sort + 1) WHERE space_id = $1 AND parent_id = $2 AND sort >= $3`,
		spaceID, pageID, pos); err != nil {
		return "", fmt.Errorf("postgres: shift siblings: %w", err)
	}

	sop := data.Data
	if err := sop.Validate(); err != nil {
		return "", err
	}
	projectID, err := spaceProject(ctx, tx, spaceID)
	if err != nil {
		return "", err
	}

	propsJSON, _ := json.Marshal(map[string]any{"preferences": sop.Preferences})
	now := acontext.NowUnix()
	blockID := acontext.NewID()
	_, err = tx.Exec(ctx,
		`INSERT INTO blocks (id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, 'sop', $4, $5::jsonb, $6, FALSE, $7, $8)`,
		blockID, spaceID, pageID, sop.UseWhen, string(propsJSON), pos, now, now)
	if err != nil {
		return "", fmt.Errorf("postgres: insert block: %w", err)
	}

	for i, step := range sop.ToolSOPs {
		name := acontext.NormalizeToolName(step.ToolName)
		var refID string
		err := tx.QueryRow(ctx,
			`INSERT INTO tool_references (id, project_id, name, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (project_id, name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			acontext.NewID(), projectID, name, now).Scan(&refID)
		if err != nil {
			return "", fmt.Errorf("postgres: upsert tool reference: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO tool_sops (id, sop_block_id, tool_reference_id, action, sort)
			 VALUES ($1, $2, $3, $4, $5)`,
			acontext.NewID(), blockID, refID, step.Action, i); err != nil {
			return "", fmt.Errorf("postgres: insert tool sop: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE blocks SET sort = -sort WHERE space_id = $1 AND parent_id = $2 AND sort < 0`,
		spaceID, pageID); err != nil {
		return "", fmt.Errorf("postgres: unshift siblings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres: commit tx: %w", err)
	}
	return blockID, nil
}

// FetchBlock returns a block by id.
func (s *Store) FetchBlock(ctx context.Context, blockID string) (acontext.Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at
		 FROM blocks WHERE id = $1`, blockID)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, acontext.NotFoundf("block %s not found", blockID)
	}
	return b, err
}

// FetchChildrenByTypes returns the non-archived children of parentID (nil =
// root) restricted to the given types, ordered by sort.
func (s *Store) FetchChildrenByTypes(ctx context.Context, spaceID string, parentID *string, types []string) ([]acontext.Block, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at
			 FROM blocks
			 WHERE space_id = $1 AND parent_id IS NULL AND type = ANY($2) AND NOT is_archived
			 ORDER BY sort ASC`, spaceID, types)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at
			 FROM blocks
			 WHERE space_id = $1 AND parent_id = $2 AND type = ANY($3) AND NOT is_archived
			 ORDER BY sort ASC`, spaceID, *parentID, types)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch children: %w", err)
	}
	defer rows.Close()

	var out []acontext.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListPathsUnder maps "/"-joined paths to block ids, covering path blocks
// only and recursing up to depth folder levels.
func (s *Store) ListPathsUnder(ctx context.Context, spaceID string, blockID *string, depth int) (map[string]string, error) {
	if blockID != nil {
		b, err := s.FetchBlock(ctx, *blockID)
		if err != nil {
			return nil, err
		}
		if b.Type != acontext.BlockTypeFolder {
			return nil, acontext.BadRequestf("block %s (type %s) is not a folder", *blockID, b.Type)
		}
	}
	return s.listPaths(ctx, spaceID, blockID, depth, "")
}

func (s *Store) listPaths(ctx context.Context, spaceID string, blockID *string, depth int, prefix string) (map[string]string, error) {
	children, err := s.FetchChildrenByTypes(ctx, spaceID, blockID, acontext.PathBlockTypes)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]string)
	for _, b := range children {
		paths[prefix+b.Title] = b.ID
		if b.Type == acontext.BlockTypeFolder && depth > 0 {
			id := b.ID
			sub, err := s.listPaths(ctx, spaceID, &id, depth-1, "")
			if err != nil {
				return nil, err
			}
			for p, subID := range sub {
				paths[prefix+b.Title+"/"+p] = subID
			}
		}
	}
	return paths, nil
}

// RenderBlockProps resolves a block's props for display. SOP blocks rebuild
// tool_sops from the join so tool renames are reflected.
func (s *Store) RenderBlockProps(ctx context.Context, block acontext.Block) (map[string]any, error) {
	props := make(map[string]any, len(block.Props)+1)
	for k, v := range block.Props {
		props[k] = v
	}
	if block.Type != acontext.BlockTypeSOP {
		return props, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tr.name, ts.action
		 FROM tool_sops ts
		 JOIN tool_references tr ON tr.id = ts.tool_reference_id
		 WHERE ts.sop_block_id = $1
		 ORDER BY ts.sort ASC`, block.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: render sop props: %w", err)
	}
	defer rows.Close()

	toolSOPs := []map[string]any{}
	for rows.Next() {
		var name, action string
		if err := rows.Scan(&name, &action); err != nil {
			return nil, fmt.Errorf("postgres: scan tool sop: %w", err)
		}
		toolSOPs = append(toolSOPs, map[string]any{"tool_name": name, "action": action})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate tool sops: %w", err)
	}
	props["tool_sops"] = toolSOPs
	return props, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (acontext.Block, error) {
	var b acontext.Block
	var props []byte
	err := row.Scan(&b.ID, &b.SpaceID, &b.ParentID, &b.Type, &b.Title, &props, &b.Sort, &b.IsArchived, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &b.Props); err != nil {
			return b, fmt.Errorf("postgres: unmarshal props: %w", err)
		}
	}
	return b, nil
}

// fetchParent loads and locks the parent block, or returns nil for root.
func fetchParent(ctx context.Context, tx pgx.Tx, spaceID string, parentID *string) (*acontext.Block, error) {
	if parentID == nil {
		return nil, nil
	}
	row := tx.QueryRow(ctx,
		`SELECT id, space_id, parent_id, type, title, props, sort, is_archived, created_at, updated_at
		 FROM blocks WHERE id = $1 AND space_id = $2 FOR UPDATE`, *parentID, spaceID)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, acontext.NotFoundf("parent block %s not found", *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch parent: %w", err)
	}
	return &b, nil
}

// nextSiblingSort allocates max(sort)+1 among the siblings under parentID.
func nextSiblingSort(ctx context.Context, tx pgx.Tx, spaceID string, parentID *string) (int, error) {
	var sort int
	var err error
	if parentID == nil {
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sort), -1) + 1 FROM blocks WHERE space_id = $1 AND parent_id IS NULL`,
			spaceID).Scan(&sort)
	} else {
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sort), -1) + 1 FROM blocks WHERE space_id = $1 AND parent_id = $2`,
			spaceID, *parentID).Scan(&sort)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: next sort: %w", err)
	}
	return sort, nil
}

// spaceProject resolves the owning project of a space.
func spaceProject(ctx context.Context, tx pgx.Tx, spaceID string) (string, error) {
	var projectID string
	err := tx.QueryRow(ctx, `SELECT project_id FROM spaces WHERE id = $1`, spaceID).Scan(&projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", acontext.NotFoundf("space %s not found", spaceID)
	}
	if err != nil {
		return "", fmt.Errorf("postgres: fetch space: %w", err)
	}
	return projectID, nil
}
