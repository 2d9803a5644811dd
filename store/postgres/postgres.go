// Package postgres implements acontext.Store using PostgreSQL with
// pgvector for native cosine-distance search over block embeddings.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	acontext "github.com/slyt3/Acontext"
)

// Store implements acontext.Store backed by PostgreSQL with pgvector.
// Vector search uses HNSW indexes with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

var _ acontext.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			configs JSONB,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS spaces (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS spaces_project_idx ON spaces(project_id)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			space_id TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_project_idx ON sessions(project_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			parts JSONB NOT NULL,
			task_id TEXT,
			session_task_process_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (session_task_process_status IN ('success','failed','running','pending')),
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_session_idx ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS messages_task_idx ON messages(task_id)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			task_order INTEGER NOT NULL,
			task_status TEXT NOT NULL
				CHECK (task_status IN ('success','failed','running','pending')),
			data JSONB NOT NULL DEFAULT '{}',
			is_planning BOOLEAN NOT NULL DEFAULT FALSE,
			space_digested BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE(session_id, task_order)
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_session_idx ON tasks(session_id)`,
		`CREATE INDEX IF NOT EXISTS tasks_session_status_idx ON tasks(session_id, task_status)`,

		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			space_id TEXT NOT NULL,
			parent_id TEXT,
			type TEXT NOT NULL CHECK (type IN ('folder','page','text','sop')),
			title TEXT NOT NULL DEFAULT '',
			props JSONB NOT NULL DEFAULT '{}',
			sort INTEGER NOT NULL DEFAULT 0,
			is_archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE(space_id, parent_id, sort)
		)`,
		`CREATE INDEX IF NOT EXISTS blocks_space_type_idx ON blocks(space_id, type, is_archived)`,
		`CREATE INDEX IF NOT EXISTS blocks_parent_idx ON blocks(parent_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS block_embeddings (
			id TEXT PRIMARY KEY,
			block_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			embedding %s NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE(block_id, phase)
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS block_embeddings_block_idx ON block_embeddings(block_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS block_embeddings_vec_idx ON block_embeddings USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),

		`CREATE TABLE IF NOT EXISTS tool_references (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE(project_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS tool_sops (
			id TEXT PRIMARY KEY,
			sop_block_id TEXT NOT NULL,
			tool_reference_id TEXT NOT NULL,
			action TEXT NOT NULL,
			sort INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS tool_sops_block_idx ON tool_sops(sop_block_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Close releases nothing; the pool is caller-owned.
func (s *Store) Close() error { return nil }

// FetchProject returns a project by id.
func (s *Store) FetchProject(ctx context.Context, projectID string) (acontext.Project, error) {
	var p acontext.Project
	var configs []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, configs, created_at, updated_at FROM projects WHERE id = $1`,
		projectID).Scan(&p.ID, &configs, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, acontext.NotFoundf("project %s not found", projectID)
	}
	if err != nil {
		return p, fmt.Errorf("postgres: fetch project: %w", err)
	}
	p.Configs = configs
	return p, nil
}

// FetchSession returns a session by id.
func (s *Store) FetchSession(ctx context.Context, sessionID string) (acontext.Session, error) {
	var sess acontext.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, space_id, created_at, updated_at FROM sessions WHERE id = $1`,
		sessionID).Scan(&sess.ID, &sess.ProjectID, &sess.SpaceID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sess, acontext.NotFoundf("session %s not found", sessionID)
	}
	if err != nil {
		return sess, fmt.Errorf("postgres: fetch session: %w", err)
	}
	return sess, nil
}

// serializeEmbedding converts []float32 to pgvector's text format,
// e.g. "[0.1,0.2,0.3]".
func serializeEmbedding(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
