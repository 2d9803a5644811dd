package postgres

import (
	"context"
	"fmt"

	acontext "github.com/slyt3/Acontext"
)

// UpsertBlockEmbedding stores one vector for a (block, phase) pair,
// replacing any previous vector for that pair.
func (s *Store) UpsertBlockEmbedding(ctx context.Context, blockID, phase string, vec []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO block_embeddings (id, block_id, phase, embedding, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5)
		 ON CONFLICT (block_id, phase) DO UPDATE SET
		   embedding = EXCLUDED.embedding,
		   created_at = EXCLUDED.created_at`,
		acontext.NewID(), blockID, phase, serializeEmbedding(vec), acontext.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: upsert block embedding: %w", err)
	}
	return nil
}

// SearchBlockEmbeddings returns up to limit (block, distance) pairs ordered
// by ascending cosine distance, filtered by space, block type and distance
// threshold, excluding archived blocks. A block with several embeddings may
// appear once per matching vector.
func (s *Store) SearchBlockEmbeddings(ctx context.Context, spaceID string, vec []float32, types []string, limit int, threshold float64) ([]acontext.SearchHit, error) {
	embStr := serializeEmbedding(vec)
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.space_id, b.parent_id, b.type, b.title, b.props, b.sort, b.is_archived, b.created_at, b.updated_at,
		        e.embedding <=> $2::vector AS distance
		 FROM block_embeddings e
		 JOIN blocks b ON b.id = e.block_id
		 WHERE b.space_id = $1
		   AND b.type = ANY($3)
		   AND NOT b.is_archived
		   AND e.embedding <=> $2::vector <= $4
		 ORDER BY distance ASC
		 LIMIT $5`,
		spaceID, embStr, types, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search embeddings: %w", err)
	}
	defer rows.Close()

	var hits []acontext.SearchHit
	for rows.Next() {
		var b acontext.Block
		var props []byte
		var distance float64
		if err := rows.Scan(&b.ID, &b.SpaceID, &b.ParentID, &b.Type, &b.Title, &props, &b.Sort, &b.IsArchived, &b.CreatedAt, &b.UpdatedAt, &distance); err != nil {
			return nil, fmt.Errorf("postgres: scan search hit: %w", err)
		}
		if len(props) > 0 {
			if err := unmarshalProps(props, &b); err != nil {
				return nil, err
			}
		}
		hits = append(hits, acontext.SearchHit{Block: b, Distance: distance})
	}
	return hits, rows.Err()
}
