package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/agent"
)

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.flusher.FlushSession(r.Context(), projectID, sessionID); err != nil {
		s.logger.Error("flush failed", "session_id", sessionID, "error", err)
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Flag{Status: "ok"})
}

// searchParams are the shared query parameters of the search endpoints.
type searchParams struct {
	query     string
	limit     int
	threshold *float64
}

func parseSearchParams(r *http.Request, thresholdKey string) (searchParams, error) {
	p := searchParams{limit: defaultSearchLimit}

	p.query = r.URL.Query().Get("query")
	if strings.TrimSpace(p.query) == "" {
		return p, acontext.Validation("query is required")
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			return p, acontext.Validationf("limit must be an integer in [1, %d]", maxSearchLimit)
		}
		p.limit = n
	}
	if raw := r.URL.Query().Get(thresholdKey); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 || t > maxThreshold {
			return p, acontext.Validationf("%s must be a number in [0, %g]", thresholdKey, maxThreshold)
		}
		p.threshold = &t
	}
	return p, nil
}

func (s *Server) handleSemanticGlob(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	p, err := parseSearchParams(r, "threshold")
	if err != nil {
		s.writeError(w, err)
		return
	}

	hits, err := s.searcher.SemanticGlob(r.Context(), spaceID, p.query, p.limit, p.threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Path blocks carry no tool references; raw props render as-is.
	items := make([]agent.SearchResultBlockItem, 0, len(hits))
	for _, h := range hits {
		d := h.Distance
		items = append(items, agent.SearchResultBlockItem{
			BlockID:  h.Block.ID,
			Title:    h.Block.Title,
			Type:     h.Block.Type,
			Props:    h.Block.Props,
			Distance: &d,
		})
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSemanticGrep(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	p, err := parseSearchParams(r, "threshold")
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.experience.Fast(r.Context(), spaceID, p.query, p.limit, p.threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result.CitedBlocks)
}

func (s *Server) handleExperienceSearch(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	p, err := parseSearchParams(r, "semantic_threshold")
	if err != nil {
		s.writeError(w, err)
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "fast"
	}

	var result agent.ExperienceSearchResult
	switch mode {
	case "fast":
		result, err = s.experience.Fast(r.Context(), spaceID, p.query, p.limit, p.threshold)
	case "agentic":
		iters := defaultAgenticIterations
		if raw := r.URL.Query().Get("max_iterations"); raw != "" {
			n, perr := strconv.Atoi(raw)
			if perr != nil || n < 1 || n > 100 {
				s.writeError(w, acontext.Validation("max_iterations must be an integer in [1, 100]"))
				return
			}
			iters = n
		}
		result, err = s.experience.Agentic(r.Context(), spaceID, p.query, iters)
	default:
		s.writeError(w, acontext.Validationf("invalid search mode: %s", mode))
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type insertBlockRequest struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Props    map[string]any `json:"props"`
	ParentID *string        `json:"parent_id,omitempty"`
}

type insertBlockResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleInsertBlock(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")

	var req insertBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, acontext.BadRequest("invalid request body"))
		return
	}

	switch {
	case req.Type == acontext.BlockTypeSOP:
		if req.ParentID == nil {
			s.writeError(w, acontext.Validation("sop blocks require a parent page"))
			return
		}
		sop, err := sopFromProps(req.Title, req.Props)
		if err != nil {
			s.writeError(w, err)
			return
		}
		id, err := s.store.WriteSOPToParent(r.Context(), spaceID, *req.ParentID, sop)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.indexer.IndexBlockID(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, insertBlockResponse{ID: id})

	case acontext.IsPathBlockType(req.Type):
		blk, err := s.store.CreatePathBlock(r.Context(), spaceID, req.Title, req.Props, req.ParentID, req.Type)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.indexer.IndexBlock(r.Context(), blk); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, insertBlockResponse{ID: blk.ID})

	default:
		s.writeError(w, acontext.Validationf("invalid block type: %s", req.Type))
	}
}

// sopFromProps builds the SOP value from the request props, taking use_when
// from the block title.
func sopFromProps(title string, props map[string]any) (acontext.SOPData, error) {
	raw, err := json.Marshal(props)
	if err != nil {
		return acontext.SOPData{}, acontext.Validation("invalid sop props")
	}
	var sop acontext.SOPData
	if err := json.Unmarshal(raw, &sop); err != nil {
		return acontext.SOPData{}, acontext.Validationf("invalid sop props: %v", err)
	}
	sop.UseWhen = title
	if err := sop.Validate(); err != nil {
		return acontext.SOPData{}, err
	}
	return sop, nil
}

type toolRenameRequest struct {
	Rename []struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	} `json:"rename"`
}

func (s *Server) handleToolRename(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req toolRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, acontext.BadRequest("invalid request body"))
		return
	}
	renames := make([][2]string, 0, len(req.Rename))
	for _, t := range req.Rename {
		renames = append(renames, [2]string{strings.TrimSpace(t.OldName), strings.TrimSpace(t.NewName)})
	}
	if err := s.store.RenameTools(r.Context(), projectID, renames); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, Flag{Status: "ok"})
}

func (s *Server) handleToolNames(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	refs, err := s.store.ListToolNames(r.Context(), projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, refs)
}

type learningStatusResponse struct {
	SpaceDigestedCount    int `json:"space_digested_count"`
	NotSpaceDigestedCount int `json:"not_space_digested_count"`
}

func (s *Server) handleLearningStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.store.FetchSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if session.SpaceID == nil {
		s.writeJSON(w, http.StatusOK, learningStatusResponse{})
		return
	}
	digested, notDigested, err := s.store.CountLearningStatus(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, learningStatusResponse{
		SpaceDigestedCount:    digested,
		NotSpaceDigestedCount: notDigested,
	})
}
