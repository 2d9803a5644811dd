package acontext

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("no limit: %q", got)
	}
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("under limit: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello[...truncated]" {
		t.Errorf("over limit: %q", got)
	}
	// Rune-safe on multibyte input.
	if got := Truncate("héllö wörld", 5); got != "héllö[...truncated]" {
		t.Errorf("multibyte: %q", got)
	}
}

func TestMessageRender(t *testing.T) {
	m := Message{
		Role: "assistant",
		Parts: []Part{
			{Type: "text", Text: "starring now"},
			{Type: "tool-call", Meta: map[string]any{"tool_name": "click", "arguments": `{"target":"Star"}`}},
			{Type: "tool-result", Meta: map[string]any{"tool_name": "click", "result": "clicked"}},
		},
	}
	got := m.Render(0)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("rendered %d lines: %q", len(lines), got)
	}
	if lines[0] != "<agent>(text) starring now" {
		t.Errorf("text line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `<agent>(tool-call) 'tool_name': "click"`) {
		t.Errorf("tool-call line = %q", lines[1])
	}
	if !strings.Contains(lines[2], `'result': "clicked"`) {
		t.Errorf("tool-result line = %q", lines[2])
	}

	user := Message{Role: "user", Parts: []Part{{Type: "text", Text: "hi"}}}
	if got := user.Render(0); got != "<user>(text) hi" {
		t.Errorf("user render = %q", got)
	}
}

func TestMessageRenderTruncatesParts(t *testing.T) {
	m := Message{Role: "user", Parts: []Part{{Type: "text", Text: strings.Repeat("x", 100)}}}
	got := m.Render(10)
	if !strings.Contains(got, "[...truncated]") {
		t.Errorf("long part not truncated: %q", got)
	}
}

func TestMessageToolNames(t *testing.T) {
	m := Message{Parts: []Part{
		{Type: "tool-call", Meta: map[string]any{"tool_name": "click"}},
		{Type: "text", Text: "ignored"},
		{Type: "tool-call", Meta: map[string]any{"tool_name": "scroll"}},
		{Type: "tool-call", Meta: map[string]any{"tool_name": "click"}},
		{Type: "tool-call"},
	}}
	got := m.ToolNames()
	want := []string{"click", "scroll"}
	if len(got) != len(want) {
		t.Fatalf("ToolNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToolNames[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateBlockParent(t *testing.T) {
	folder := &Block{Type: BlockTypeFolder}
	page := &Block{Type: BlockTypePage}
	sop := &Block{Type: BlockTypeSOP}

	cases := []struct {
		name      string
		blockType string
		parent    *Block
		ok        bool
	}{
		{"folder at root", BlockTypeFolder, nil, true},
		{"page at root", BlockTypePage, nil, true},
		{"sop at root", BlockTypeSOP, nil, false},
		{"page under folder", BlockTypePage, folder, true},
		{"sop under folder", BlockTypeSOP, folder, false},
		{"sop under page", BlockTypeSOP, page, true},
		{"text under page", BlockTypeText, page, true},
		{"page under page", BlockTypePage, page, false},
		{"anything under sop", BlockTypeText, sop, false},
		{"unknown type", "widget", nil, false},
	}
	for _, c := range cases {
		err := ValidateBlockParent(c.blockType, c.parent)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok {
			if !IsValidation(err) {
				t.Errorf("%s: err = %v, want validation", c.name, err)
			}
		}
	}
}

func TestSOPDataValidate(t *testing.T) {
	empty := SOPData{UseWhen: "whenever"}
	if !IsValidation(empty.Validate()) {
		t.Error("empty sop accepted")
	}
	prefsOnly := SOPData{Preferences: "always confirm before deleting"}
	if err := prefsOnly.Validate(); err != nil {
		t.Errorf("preferences-only sop rejected: %v", err)
	}
	blankTool := SOPData{ToolSOPs: []SOPStep{{ToolName: "  ", Action: "do"}}}
	if !IsValidation(blankTool.Validate()) {
		t.Error("blank tool name accepted")
	}
	full := SOPData{ToolSOPs: []SOPStep{{ToolName: "click", Action: "Star"}}}
	if err := full.Validate(); err != nil {
		t.Errorf("valid sop rejected: %v", err)
	}
}

func TestSOPDataEmpty(t *testing.T) {
	if !(SOPData{UseWhen: "x", Preferences: "  "}).Empty() {
		t.Error("whitespace preferences counted as content")
	}
	if (SOPData{ToolSOPs: []SOPStep{{ToolName: "click"}}}).Empty() {
		t.Error("sop with steps reported empty")
	}
}

func TestNormalizeToolName(t *testing.T) {
	if got := NormalizeToolName("  Click_Element "); got != "click_element" {
		t.Errorf("normalized = %q", got)
	}
}

func TestTaskString(t *testing.T) {
	task := Task{Order: 3, Status: TaskSuccess, Data: TaskData{TaskDescription: "star the repo"}}
	if got := task.String(); got != "task_order=3 [success] star the repo" {
		t.Errorf("String() = %q", got)
	}
}

func TestProjectConfigDefaults(t *testing.T) {
	if got := (Project{}).Config(); got.SpaceConstructMaxIterations != 16 {
		t.Errorf("nil configs: iterations = %d", got.SpaceConstructMaxIterations)
	}
	p := Project{Configs: json.RawMessage(`{"default_space_construct_agent_max_iterations":4,"sop_agent_custom_scoring_rules":["prefer short sops"]}`)}
	got := p.Config()
	if got.SpaceConstructMaxIterations != 4 {
		t.Errorf("override: iterations = %d", got.SpaceConstructMaxIterations)
	}
	if len(got.SOPCustomScoringRules) != 1 || got.SOPCustomScoringRules[0] != "prefer short sops" {
		t.Errorf("scoring rules = %v", got.SOPCustomScoringRules)
	}
	broken := Project{Configs: json.RawMessage(`{nope`)}
	if got := broken.Config(); got.SpaceConstructMaxIterations != 16 {
		t.Errorf("invalid configs: iterations = %d", got.SpaceConstructMaxIterations)
	}
	zeroed := Project{Configs: json.RawMessage(`{"default_space_construct_agent_max_iterations":0}`)}
	if got := zeroed.Config(); got.SpaceConstructMaxIterations != 16 {
		t.Errorf("zero override: iterations = %d", got.SpaceConstructMaxIterations)
	}
}

func TestValidTaskStatus(t *testing.T) {
	for _, s := range []TaskStatus{TaskPending, TaskRunning, TaskSuccess, TaskFailed} {
		if !ValidTaskStatus(s) {
			t.Errorf("%q rejected", s)
		}
	}
	if ValidTaskStatus("done") {
		t.Error(`"done" accepted`)
	}
}

func TestBlockTypePredicates(t *testing.T) {
	if !IsPathBlockType(BlockTypeFolder) || !IsPathBlockType(BlockTypePage) {
		t.Error("folder/page not path types")
	}
	if IsPathBlockType(BlockTypeSOP) {
		t.Error("sop is a path type")
	}
	if !IsValidBlockType(BlockTypeText) || IsValidBlockType("widget") {
		t.Error("block type validity wrong")
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := UserMessage("hi"); m.Role != "user" || m.Content != "hi" {
		t.Errorf("UserMessage = %+v", m)
	}
	if m := SystemMessage("sys"); m.Role != "system" {
		t.Errorf("SystemMessage = %+v", m)
	}
	if m := AssistantMessage("a"); m.Role != "assistant" {
		t.Errorf("AssistantMessage = %+v", m)
	}
	if m := ToolResultMessage("id1", "out"); m.Role != "tool" || m.ToolCallID != "id1" || m.Content != "out" {
		t.Errorf("ToolResultMessage = %+v", m)
	}
}
