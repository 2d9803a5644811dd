package agent

import (
	"context"
	"strings"
	"testing"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/store/memory"
)

func TestSOPEasyTaskDigestsWithoutPublishing(t *testing.T) {
	store := memory.New()
	projectID, sessionID := seedSession(t, store)
	spaceID := acontext.NewID()
	task := seedTask(t, store, projectID, sessionID, 0, "click the star button", acontext.TaskSuccess)

	publisher := &fakePublisher{}
	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(
			call("report_thinking", `{"thinking":"score 0, easy task"}`),
			call("submit_sop", `{"is_easy_task":true,"sop":{"use_when":"","preferences":"","tool_sops":[]}}`),
		),
	}}
	abstractor := NewSOPAbstractor(store, provider, publisher)
	if err := abstractor.Run(context.Background(), projectID, spaceID, task, nil, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(publisher.events) != 0 {
		t.Errorf("easy task should publish nothing, got %d events", len(publisher.events))
	}
	got, _ := store.FetchTask(context.Background(), task.ID)
	if !got.SpaceDigested {
		t.Error("easy task should be marked space_digested")
	}
}

func TestSOPComplexTaskPublishes(t *testing.T) {
	store := memory.New()
	projectID, sessionID := seedSession(t, store)
	spaceID := acontext.NewID()
	task := seedTask(t, store, projectID, sessionID, 0, "star a repo", acontext.TaskSuccess)

	publisher := &fakePublisher{}
	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(call("submit_sop",
			`{"is_easy_task":false,"sop":{"use_when":"star a repo on github.com","preferences":"","tool_sops":[{"tool_name":"click","action":"Star"}]}}`)),
	}}
	abstractor := NewSOPAbstractor(store, provider, publisher)
	if err := abstractor.Run(context.Background(), projectID, spaceID, task, nil, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("got %d events, want 1", len(publisher.events))
	}
	ev := publisher.events[0]
	if ev.projectID != projectID || ev.spaceID != spaceID || ev.taskID != task.ID {
		t.Errorf("event ids = %+v", ev)
	}
	if ev.sop.UseWhen != "star a repo on github.com" || len(ev.sop.ToolSOPs) != 1 {
		t.Errorf("event sop = %+v", ev.sop)
	}

	// Digestion happens after construction, not at publish time.
	got, _ := store.FetchTask(context.Background(), task.ID)
	if got.SpaceDigested {
		t.Error("published task must not be digested yet")
	}
}

func TestSOPThinkingPersisted(t *testing.T) {
	store := memory.New()
	projectID, sessionID := seedSession(t, store)
	task := seedTask(t, store, projectID, sessionID, 0, "query the table", acontext.TaskSuccess)

	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(
			call("report_thinking", `{"thinking":"used sql tool, score 0"}`),
			call("submit_sop", `{"is_easy_task":true,"sop":{"use_when":"","preferences":"","tool_sops":[]}}`),
		),
	}}
	abstractor := NewSOPAbstractor(store, provider, &fakePublisher{})
	if err := abstractor.Run(context.Background(), projectID, acontext.NewID(), task, nil, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := store.FetchTask(context.Background(), task.ID)
	if got.Data.SOPThinking != "used sql tool, score 0" {
		t.Errorf("sop_thinking = %q", got.Data.SOPThinking)
	}
}

func TestSOPSubmitIsTerminal(t *testing.T) {
	store := memory.New()
	projectID, sessionID := seedSession(t, store)
	task := seedTask(t, store, projectID, sessionID, 0, "anything", acontext.TaskSuccess)

	provider := &scriptedProvider{t: t, steps: []acontext.ChatResponse{
		toolTurn(call("submit_sop", `{"is_easy_task":true,"sop":{"use_when":"","preferences":"","tool_sops":[]}}`)),
		// No second step: a call here would fail the test.
	}}
	abstractor := NewSOPAbstractor(store, provider, &fakePublisher{})
	if err := abstractor.Run(context.Background(), projectID, acontext.NewID(), task, nil, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestSOPSystemPromptCustomRules(t *testing.T) {
	prompt := sopSystemPrompt([]string{"Repeated shell commands, + 1 point"})
	if !strings.Contains(prompt, "(c.5) Repeated shell commands, + 1 point") {
		t.Error("custom rule not appended as (c.5)")
	}
	if !strings.Contains(prompt, "(c.1), (c.2), (c.3), (c.4), (c.5)") {
		t.Error("rule indices not extended with custom rule")
	}

	base := sopSystemPrompt(nil)
	if strings.Contains(base, "(c.5)") {
		t.Error("base prompt should carry only four rules")
	}
	if !strings.Contains(base, "(c.1), (c.2), (c.3), (c.4)") {
		t.Error("base rule indices missing")
	}
}
