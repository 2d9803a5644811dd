// Package memory implements acontext.Store entirely in memory. It mirrors
// the PostgreSQL store's semantics (dense orders and sorts, parent-type
// rules, cosine-distance search) and backs tests and local development.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	acontext "github.com/slyt3/Acontext"
)

// Store implements acontext.Store with plain maps behind one mutex.
type Store struct {
	mu sync.Mutex

	projects map[string]acontext.Project
	spaces   map[string]acontext.Space
	sessions map[string]acontext.Session
	messages map[string]*acontext.Message
	tasks    map[string]*acontext.Task
	blocks   map[string]*acontext.Block

	// embeddings[blockID][phase] = vector
	embeddings map[string]map[string][]float32

	toolRefs map[string]acontext.ToolReference // by id
	toolSOPs []acontext.ToolSOP

	// taskProject records the owning project of each task.
	taskProject map[string]string
}

var _ acontext.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects:    make(map[string]acontext.Project),
		spaces:      make(map[string]acontext.Space),
		sessions:    make(map[string]acontext.Session),
		messages:    make(map[string]*acontext.Message),
		tasks:       make(map[string]*acontext.Task),
		blocks:      make(map[string]*acontext.Block),
		embeddings:  make(map[string]map[string][]float32),
		toolRefs:    make(map[string]acontext.ToolReference),
		taskProject: make(map[string]string),
	}
}

// Init is a no-op; the store is ready after New.
func (s *Store) Init(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// --- seeding (not part of acontext.Store) ---

// AddProject registers a project.
func (s *Store) AddProject(p acontext.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

// AddSpace registers a space.
func (s *Store) AddSpace(sp acontext.Space) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[sp.ID] = sp
}

// AddSession registers a session.
func (s *Store) AddSession(sess acontext.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// AddMessage registers a message. Empty process status defaults to pending.
func (s *Store) AddMessage(m acontext.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ProcessStatus == "" {
		m.ProcessStatus = "pending"
	}
	cp := m
	s.messages[m.ID] = &cp
}

// --- tenancy ---

func (s *Store) FetchProject(ctx context.Context, projectID string) (acontext.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return p, acontext.NotFoundf("project %s not found", projectID)
	}
	return p, nil
}

func (s *Store) FetchSession(ctx context.Context, sessionID string) (acontext.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return sess, acontext.NotFoundf("session %s not found", sessionID)
	}
	return sess, nil
}

// --- blocks ---

func (s *Store) CreatePathBlock(ctx context.Context, spaceID, title string, props map[string]any, parentID *string, blockType string) (acontext.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.parentLocked(spaceID, parentID)
	if err != nil {
		return acontext.Block{}, err
	}
	if err := acontext.ValidateBlockParent(blockType, parent); err != nil {
		return acontext.Block{}, err
	}
	if props == nil {
		props = map[string]any{}
	}
	now := acontext.NowUnix()
	b := acontext.Block{
		ID:        acontext.NewID(),
		SpaceID:   spaceID,
		ParentID:  parentID,
		Type:      blockType,
		Title:     title,
		Props:     props,
		Sort:      s.nextSortLocked(spaceID, parentID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.blocks[b.ID] = &b
	return b, nil
}

func (s *Store) WriteSOPToParent(ctx context.Context, spaceID, parentID string, sop acontext.SOPData) (string, error) {
	if err := sop.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.parentLocked(spaceID, &parentID)
	if err != nil {
		return "", err
	}
	if err := acontext.ValidateBlockParent(acontext.BlockTypeSOP, parent); err != nil {
		return "", err
	}
	sp, ok := s.spaces[spaceID]
	if !ok {
		return "", acontext.NotFoundf("space %s not found", spaceID)
	}

	now := acontext.NowUnix()
	b := acontext.Block{
		ID:        acontext.NewID(),
		SpaceID:   spaceID,
		ParentID:  &parentID,
		Type:      acontext.BlockTypeSOP,
		Title:     sop.UseWhen,
		Props:     map[string]any{"preferences": sop.Preferences},
		Sort:      s.nextSortLocked(spaceID, &parentID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.blocks[b.ID] = &b
	s.linkToolSOPsLocked(sp.ProjectID, b.ID, sop)
	return b.ID, nil
}

func (s *Store) InsertBlockToPage(ctx context.Context, spaceID, pageID string, data acontext.CandidateData, afterBlockIndex int) (string, error) {
	if data.Type != acontext.BlockTypeSOP {
		return "", acontext.Validationf("unsupported candidate type: %s", data.Type)
	}
	if err := data.Data.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.blocks[pageID]
	if !ok || page.SpaceID != spaceID {
		return "", acontext.NotFoundf("page %s not found", pageID)
	}
	if page.Type != acontext.BlockTypePage {
		return "", acontext.Validationf("block %s is not a page", pageID)
	}
	sp, ok := s.spaces[spaceID]
	if !ok {
		return "", acontext.NotFoundf("space %s not found", spaceID)
	}

	// afterBlockIndex is the insertion position: 0 is the first slot.
	// Clamp to the child count so sorts stay dense.
	pos := afterBlockIndex
	if pos < 0 {
		pos = 0
	}
	siblings := 0
	for _, b := range s.blocks {
		if b.SpaceID == spaceID && b.ParentID != nil && *b.ParentID == pageID {
			siblings++
		}
	}
	if pos > siblings {
		pos = siblings
	}
	for _, b := range s.blocks {
		if b.SpaceID == spaceID && b.ParentID != nil && *b.ParentID == pageID && b.Sort >= pos {
			b.Sort++
		}
	}

	sop := data.Data
	now := acontext.NowUnix()
	b := acontext.Block{
		ID:        acontext.NewID(),
		SpaceID:   spaceID,
		ParentID:  &pageID,
		Type:      acontext.BlockTypeSOP,
		Title:     sop.UseWhen,
		Props:     map[string]any{"preferences": sop.Preferences},
		Sort:      pos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.blocks[b.ID] = &b
	s.linkToolSOPsLocked(sp.ProjectID, b.ID, sop)
	return b.ID, nil
}

func (s *Store) FetchBlock(ctx context.Context, blockID string) (acontext.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return acontext.Block{}, acontext.NotFoundf("block %s not found", blockID)
	}
	return *b, nil
}

func (s *Store) FetchChildrenByTypes(ctx context.Context, spaceID string, parentID *string, types []string) ([]acontext.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenLocked(spaceID, parentID, types), nil
}

func (s *Store) ListPathsUnder(ctx context.Context, spaceID string, blockID *string, depth int) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blockID != nil {
		b, ok := s.blocks[*blockID]
		if !ok {
			return nil, acontext.NotFoundf("block %s not found", *blockID)
		}
		if b.Type != acontext.BlockTypeFolder {
			return nil, acontext.BadRequestf("block %s (type %s) is not a folder", *blockID, b.Type)
		}
	}
	return s.listPathsLocked(spaceID, blockID, depth, ""), nil
}

func (s *Store) listPathsLocked(spaceID string, blockID *string, depth int, prefix string) map[string]string {
	paths := make(map[string]string)
	for _, b := range s.childrenLocked(spaceID, blockID, acontext.PathBlockTypes) {
		paths[prefix+b.Title] = b.ID
		if b.Type == acontext.BlockTypeFolder && depth > 0 {
			id := b.ID
			for p, subID := range s.listPathsLocked(spaceID, &id, depth-1, "") {
				paths[prefix+b.Title+"/"+p] = subID
			}
		}
	}
	return paths
}

func (s *Store) RenderBlockProps(ctx context.Context, block acontext.Block) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props := make(map[string]any, len(block.Props)+1)
	for k, v := range block.Props {
		props[k] = v
	}
	if block.Type != acontext.BlockTypeSOP {
		return props, nil
	}

	var steps []acontext.ToolSOP
	for _, ts := range s.toolSOPs {
		if ts.SOPBlockID == block.ID {
			steps = append(steps, ts)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sort < steps[j].Sort })

	toolSOPs := []map[string]any{}
	for _, ts := range steps {
		toolSOPs = append(toolSOPs, map[string]any{
			"tool_name": s.toolRefs[ts.ToolReferenceID].Name,
			"action":    ts.Action,
		})
	}
	props["tool_sops"] = toolSOPs
	return props, nil
}

// --- embeddings ---

func (s *Store) UpsertBlockEmbedding(ctx context.Context, blockID, phase string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[blockID]; !ok {
		return acontext.NotFoundf("block %s not found", blockID)
	}
	if s.embeddings[blockID] == nil {
		s.embeddings[blockID] = make(map[string][]float32)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	s.embeddings[blockID][phase] = cp
	return nil
}

func (s *Store) SearchBlockEmbeddings(ctx context.Context, spaceID string, vec []float32, types []string, limit int, threshold float64) ([]acontext.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var hits []acontext.SearchHit
	for blockID, phases := range s.embeddings {
		b, ok := s.blocks[blockID]
		if !ok || b.SpaceID != spaceID || b.IsArchived || !typeSet[b.Type] {
			continue
		}
		for _, emb := range phases {
			d := cosineDistance(vec, emb)
			if d <= threshold {
				hits = append(hits, acontext.SearchHit{Block: *b, Distance: d})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// --- tool references ---

func (s *Store) RenameTools(ctx context.Context, projectID string, renames [][2]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range renames {
		oldName := acontext.NormalizeToolName(r[0])
		newName := acontext.NormalizeToolName(r[1])
		if oldName == "" || newName == "" {
			return acontext.Validation("tool rename needs non-empty old and new names")
		}
		found := false
		for id, tr := range s.toolRefs {
			if tr.ProjectID == projectID && tr.Name == oldName {
				tr.Name = newName
				s.toolRefs[id] = tr
				found = true
			}
		}
		if !found {
			return acontext.NotFoundf("tool %s not found in project %s", oldName, projectID)
		}
	}
	return nil
}

func (s *Store) ListToolNames(ctx context.Context, projectID string) ([]acontext.ToolReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []acontext.ToolReference
	for _, tr := range s.toolRefs {
		if tr.ProjectID == projectID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- helpers ---

func (s *Store) parentLocked(spaceID string, parentID *string) (*acontext.Block, error) {
	if parentID == nil {
		return nil, nil
	}
	b, ok := s.blocks[*parentID]
	if !ok || b.SpaceID != spaceID {
		return nil, acontext.NotFoundf("parent block %s not found", *parentID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) nextSortLocked(spaceID string, parentID *string) int {
	max := -1
	for _, b := range s.blocks {
		if b.SpaceID != spaceID || !sameParent(b.ParentID, parentID) {
			continue
		}
		if b.Sort > max {
			max = b.Sort
		}
	}
	return max + 1
}

func (s *Store) childrenLocked(spaceID string, parentID *string, types []string) []acontext.Block {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	var out []acontext.Block
	for _, b := range s.blocks {
		if b.SpaceID == spaceID && sameParent(b.ParentID, parentID) && typeSet[b.Type] && !b.IsArchived {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out
}

// linkToolSOPsLocked upserts one ToolReference per distinct normalized tool
// name and records one ToolSOP row per step.
func (s *Store) linkToolSOPsLocked(projectID, blockID string, sop acontext.SOPData) {
	for i, step := range sop.ToolSOPs {
		name := acontext.NormalizeToolName(step.ToolName)
		refID := ""
		for id, tr := range s.toolRefs {
			if tr.ProjectID == projectID && tr.Name == name {
				refID = id
				break
			}
		}
		if refID == "" {
			refID = acontext.NewID()
			s.toolRefs[refID] = acontext.ToolReference{
				ID:        refID,
				ProjectID: projectID,
				Name:      name,
				CreatedAt: acontext.NowUnix(),
			}
		}
		s.toolSOPs = append(s.toolSOPs, acontext.ToolSOP{
			ID:              acontext.NewID(),
			SOPBlockID:      blockID,
			ToolReferenceID: refID,
			Action:          step.Action,
			Sort:            i,
		})
	}
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// cosineDistance is 1 - cosine similarity. Mismatched or zero vectors get
// the maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
