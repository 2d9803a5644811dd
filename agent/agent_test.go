package agent

import (
	"context"
	"encoding/json"
	"testing"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/store/memory"
)

// scriptedProvider replays a fixed sequence of LLM turns.
type scriptedProvider struct {
	t     *testing.T
	steps []acontext.ChatResponse
	calls int
}

func (p *scriptedProvider) Chat(ctx context.Context, req acontext.ChatRequest) (acontext.ChatResponse, error) {
	if p.calls >= len(p.steps) {
		p.t.Fatalf("unexpected LLM call %d", p.calls+1)
	}
	resp := p.steps[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func toolTurn(calls ...acontext.ToolCall) acontext.ChatResponse {
	return acontext.ChatResponse{ToolCalls: calls}
}

func call(name, args string) acontext.ToolCall {
	return acontext.ToolCall{ID: "call_" + name, Name: name, Args: json.RawMessage(args)}
}

func finishCall() acontext.ToolCall { return call("finish", `{}`) }

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string, phase acontext.EmbedPhase) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return len(f.vec) }
func (f *fixedEmbedder) Name() string    { return "fixed" }

// fakePublisher records published SOP-complete events.
type fakePublisher struct {
	events []publishedSOP
}

type publishedSOP struct {
	projectID string
	spaceID   string
	taskID    string
	sop       acontext.SOPData
}

func (p *fakePublisher) PublishSOPComplete(ctx context.Context, projectID, spaceID, taskID string, sop acontext.SOPData) error {
	p.events = append(p.events, publishedSOP{projectID, spaceID, taskID, sop})
	return nil
}

// --- seeding helpers ---

func seedSession(t *testing.T, store *memory.Store) (projectID, sessionID string) {
	t.Helper()
	projectID = acontext.NewID()
	sessionID = acontext.NewID()
	store.AddProject(acontext.Project{ID: projectID})
	store.AddSession(acontext.Session{ID: sessionID, ProjectID: projectID})
	return projectID, sessionID
}

func seedTask(t *testing.T, store *memory.Store, projectID, sessionID string, afterOrder int, desc string, status acontext.TaskStatus) acontext.Task {
	t.Helper()
	ctx := context.Background()
	task, err := store.InsertTask(ctx, projectID, sessionID, afterOrder, acontext.TaskData{TaskDescription: desc}, acontext.TaskPending)
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if status != acontext.TaskPending {
		if task, err = store.UpdateTask(ctx, task.ID, acontext.TaskUpdate{Status: &status}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
	}
	return task
}

func seedUserMessage(t *testing.T, store *memory.Store, sessionID, text string) acontext.Message {
	t.Helper()
	m := acontext.Message{
		ID:        acontext.NewID(),
		SessionID: sessionID,
		Role:      "user",
		Parts:     []acontext.Part{{Type: "text", Text: text}},
		CreatedAt: acontext.NowUnix(),
	}
	store.AddMessage(m)
	return m
}
