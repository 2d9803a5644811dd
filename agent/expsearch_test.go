package agent

import (
	"context"
	"fmt"
	"testing"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/store/memory"
)

// seedSOPBlock writes an SOP under a fresh page and embeds it.
func seedSOPBlock(t *testing.T, store *memory.Store, spaceID, pageID string, sop acontext.SOPData, vec []float32) string {
	t.Helper()
	ctx := context.Background()
	blockID, err := store.WriteSOPToParent(ctx, spaceID, pageID, sop)
	if err != nil {
		t.Fatalf("WriteSOPToParent: %v", err)
	}
	if err := store.UpsertBlockEmbedding(ctx, blockID, "content", vec); err != nil {
		t.Fatalf("UpsertBlockEmbedding: %v", err)
	}
	return blockID
}

func TestFastSearchReportsDistances(t *testing.T) {
	store := memory.New()
	_, spaceID := seedSpace(t, store)
	_, pageID := seedPage(t, store, spaceID, "Auth", "JWT")

	near := seedSOPBlock(t, store, spaceID, pageID, acontext.SOPData{
		UseWhen:  "validate a JWT",
		ToolSOPs: []acontext.SOPStep{{ToolName: "jwt_verify", Action: "HS256"}},
	}, []float32{1, 0, 0})
	seedSOPBlock(t, store, spaceID, pageID, acontext.SOPData{
		UseWhen:  "charge a card",
		ToolSOPs: []acontext.SOPStep{{ToolName: "stripe", Action: "charge"}},
	}, []float32{0, 1, 0})

	searcher := acontext.NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}})
	exp := NewExperienceSearcher(store, searcher, nil)

	res, err := exp.Fast(context.Background(), spaceID, "JWT validation", 10, nil)
	if err != nil {
		t.Fatalf("Fast: %v", err)
	}
	if len(res.CitedBlocks) != 1 {
		t.Fatalf("got %d blocks, want 1 (orthogonal block above threshold)", len(res.CitedBlocks))
	}
	hit := res.CitedBlocks[0]
	if hit.BlockID != near || hit.Distance == nil || *hit.Distance > 0.01 {
		t.Errorf("hit = %+v", hit)
	}
	if hit.Props["tool_sops"] == nil {
		t.Error("props should carry rendered tool_sops")
	}
	if res.FinalAnswer != "" {
		t.Errorf("fast mode has no final answer, got %q", res.FinalAnswer)
	}
}

func TestAgenticSearchAnswersWithCitations(t *testing.T) {
	store := memory.New()
	_, spaceID := seedSpace(t, store)
	_, pageID := seedPage(t, store, spaceID, "Auth", "JWT")
	blockID := seedSOPBlock(t, store, spaceID, pageID, acontext.SOPData{
		UseWhen:  "validate a JWT on the api gateway",
		ToolSOPs: []acontext.SOPStep{{ToolName: "jwt_verify", Action: "HS256 with rotating secret"}},
	}, []float32{1, 0, 0})

	searcher := acontext.NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}})
	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(call("semantic_grep", `{"query":"JWT validation","limit":15,"threshold":0.7}`)),
		toolTurn(call("answer", fmt.Sprintf(`{"final_answer":"Use HS256 with a rotating secret.","cited_block_ids":[%q]}`, blockID))),
	}}
	exp := NewExperienceSearcher(store, searcher, provider)

	res, err := exp.Agentic(context.Background(), spaceID, "JWT validation", 16)
	if err != nil {
		t.Fatalf("Agentic: %v", err)
	}
	if res.FinalAnswer != "Use HS256 with a rotating secret." {
		t.Errorf("final answer = %q", res.FinalAnswer)
	}
	if len(res.CitedBlocks) != 1 {
		t.Fatalf("got %d cited blocks, want 1", len(res.CitedBlocks))
	}
	cited := res.CitedBlocks[0]
	if cited.BlockID != blockID || cited.Title == "" || cited.Type != acontext.BlockTypeSOP {
		t.Errorf("cited = %+v", cited)
	}
	if cited.Distance != nil {
		t.Error("cited block distance must be null")
	}
}

func TestAgenticSearchOpenPage(t *testing.T) {
	store := memory.New()
	_, spaceID := seedSpace(t, store)
	_, pageID := seedPage(t, store, spaceID, "Auth", "JWT")
	seedSOPBlock(t, store, spaceID, pageID, acontext.SOPData{
		UseWhen:  "validate a JWT",
		ToolSOPs: []acontext.SOPStep{{ToolName: "jwt_verify", Action: "HS256"}},
	}, []float32{1, 0, 0})

	searcher := acontext.NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}})
	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(call("open_page", `{"path":"/Auth/JWT"}`)),
		toolTurn(call("answer", `{"final_answer":"No relevant experience.","cited_block_ids":[]}`)),
	}}
	exp := NewExperienceSearcher(store, searcher, provider)

	res, err := exp.Agentic(context.Background(), spaceID, "JWT validation", 16)
	if err != nil {
		t.Fatalf("Agentic: %v", err)
	}
	if res.FinalAnswer == "" {
		t.Error("final answer missing")
	}
	if len(res.CitedBlocks) != 0 {
		t.Errorf("got %d cited blocks, want 0", len(res.CitedBlocks))
	}
}

func TestAgenticSearchUnknownCitationFedBack(t *testing.T) {
	store := memory.New()
	_, spaceID := seedSpace(t, store)

	searcher := acontext.NewSearcher(store, &fixedEmbedder{vec: []float32{1, 0, 0}})
	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(call("answer", `{"final_answer":"made up","cited_block_ids":["nope"]}`)),
		toolTurn(call("answer", `{"final_answer":"nothing recorded","cited_block_ids":[]}`)),
	}}
	exp := NewExperienceSearcher(store, searcher, provider)

	res, err := exp.Agentic(context.Background(), spaceID, "anything", 16)
	if err != nil {
		t.Fatalf("Agentic: %v", err)
	}
	if res.FinalAnswer != "nothing recorded" {
		t.Errorf("final answer = %q", res.FinalAnswer)
	}
}

func TestClampSearchIterations(t *testing.T) {
	cases := []struct{ in, want int }{
		{-1, 16},
		{0, 16},
		{1, 1},
		{42, 42},
		{100, 100},
		{500, 100},
	}
	for _, c := range cases {
		if got := clampSearchIterations(c.in); got != c.want {
			t.Errorf("clampSearchIterations(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
