package agent

import (
	"strings"
	"testing"

	acontext "github.com/slyt3/Acontext"
)

func mkTask(order int, status acontext.TaskStatus, desc string, progresses ...string) acontext.Task {
	return acontext.Task{
		Order:  order,
		Status: status,
		Data:   acontext.TaskData{TaskDescription: desc, Progresses: progresses},
	}
}

func TestPackTaskSection(t *testing.T) {
	got := packTaskSection([]acontext.Task{
		mkTask(1, acontext.TaskSuccess, "A"),
		mkTask(2, acontext.TaskRunning, "B"),
	})
	want := "- task_order=1 [success] A\n- task_order=2 [running] B"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPackPreviousProgressKeepsLatestAcrossTasks(t *testing.T) {
	tasks := []acontext.Task{
		mkTask(1, acontext.TaskSuccess, "A", "a1", "a2", "a3"),
		mkTask(2, acontext.TaskRunning, "B", "b1", "b2"),
	}
	got := packPreviousProgressSection(tasks, 3)
	// The three newest progress lines, oldest first.
	want := "Task 1: a3\nTask 2: b1\nTask 2: b2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPackPreviousProgressUnderLimit(t *testing.T) {
	tasks := []acontext.Task{mkTask(1, acontext.TaskRunning, "A", "a1")}
	if got := packPreviousProgressSection(tasks, 6); got != "Task 1: a1" {
		t.Errorf("got %q", got)
	}
	if got := packPreviousProgressSection(nil, 6); got != "" {
		t.Errorf("got %q for no tasks", got)
	}
}

func TestPackCurrentMessageWithIDs(t *testing.T) {
	msgs := []acontext.Message{
		{Role: "user", Parts: []acontext.Part{{Type: "text", Text: "hello"}}},
		{Role: "assistant", Parts: []acontext.Part{{Type: "text", Text: "hi"}}},
	}
	got := packCurrentMessageWithIDs(msgs)
	want := "<message id=0> <user>(text) hello </message>\n<message id=1> <agent>(text) hi </message>"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPackTaskData(t *testing.T) {
	task := acontext.Task{Data: acontext.TaskData{
		TaskDescription: "deploy",
		UserPreferences: []string{"user wants staging first"},
	}}
	msgs := []acontext.Message{
		{Role: "user", Parts: []acontext.Part{{Type: "text", Text: "go"}}},
	}
	desc, prefs, raw := packTaskData(task, msgs)
	if desc != "deploy" {
		t.Errorf("desc = %q", desc)
	}
	if prefs != "- user wants staging first" {
		t.Errorf("prefs = %q", prefs)
	}
	if raw != "<user>(text) go" {
		t.Errorf("raw = %q", raw)
	}
}

func TestPackTaskDataRawHistoryTruncation(t *testing.T) {
	task := acontext.Task{Data: acontext.TaskData{TaskDescription: "deploy"}}
	medium := strings.Repeat("m", 600)
	long := strings.Repeat("l", 2000)
	msgs := []acontext.Message{
		{Role: "user", Parts: []acontext.Part{{Type: "text", Text: medium}}},
		{Role: "user", Parts: []acontext.Part{{Type: "text", Text: long}}},
	}

	_, _, raw := packTaskData(task, msgs)
	// Parts keep up to 1024 runes before the marker kicks in.
	if !strings.Contains(raw, medium) {
		t.Error("600-rune part should survive untruncated")
	}
	if strings.Contains(raw, long) {
		t.Error("2000-rune part should be truncated")
	}
	if !strings.Contains(raw, strings.Repeat("l", 1024)+"[...truncated]") {
		t.Errorf("long part not cut at 1024 runes: %q", raw[len(raw)-60:])
	}
}

func TestPackPreviousTaskContext(t *testing.T) {
	previous := []acontext.Task{
		mkTask(1, acontext.TaskSuccess, "open the dashboard", "I opened https://grafana.local"),
	}
	current := mkTask(2, acontext.TaskSuccess, "read the error rate")
	got := packPreviousTaskContext(previous, current)

	if !strings.Contains(got, "<task id=1>") {
		t.Errorf("missing task block: %q", got)
	}
	if !strings.Contains(got, "Description: open the dashboard") {
		t.Errorf("missing description: %q", got)
	}
	if !strings.Contains(got, "- I opened https://grafana.local") {
		t.Errorf("missing progress line: %q", got)
	}
	if !strings.Contains(got, "You're looking at task 2.") {
		t.Errorf("missing current task pointer: %q", got)
	}
}
