package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	acontext "github.com/slyt3/Acontext"
)

// RenameTools applies a batch of (old, new) tool renames for a project.
// Names are normalized before matching; a missing old name is not-found.
func (s *Store) RenameTools(ctx context.Context, projectID string, renames [][2]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range renames {
		oldName := acontext.NormalizeToolName(r[0])
		newName := acontext.NormalizeToolName(r[1])
		if oldName == "" || newName == "" {
			return acontext.Validation("tool rename needs non-empty old and new names")
		}
		tag, err := tx.Exec(ctx,
			`UPDATE tool_references SET name = $3 WHERE project_id = $1 AND name = $2`,
			projectID, oldName, newName)
		if err != nil {
			return fmt.Errorf("postgres: rename tool: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return acontext.NotFoundf("tool %s not found in project %s", oldName, projectID)
		}
	}
	return tx.Commit(ctx)
}

// ListToolNames returns the project's tool references ordered by name.
func (s *Store) ListToolNames(ctx context.Context, projectID string) ([]acontext.ToolReference, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, created_at FROM tool_references
		 WHERE project_id = $1 ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tools: %w", err)
	}
	defer rows.Close()

	var out []acontext.ToolReference
	for rows.Next() {
		var tr acontext.ToolReference
		if err := rows.Scan(&tr.ID, &tr.ProjectID, &tr.Name, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan tool reference: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// unmarshalProps decodes a props JSONB column into the block.
func unmarshalProps(raw []byte, b *acontext.Block) error {
	if err := json.Unmarshal(raw, &b.Props); err != nil {
		return fmt.Errorf("postgres: unmarshal props: %w", err)
	}
	return nil
}
