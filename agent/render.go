package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	acontext "github.com/slyt3/Acontext"
)

// Prompt rendering limits. Both the flush batch and the raw history a task
// carries into SOP abstraction cap each part at 1024 characters.
const (
	currentMessageTruncate = 1024
	historyTruncate        = 1024
)

// packTaskSection lists the session's tasks one per line for the prompt.
func packTaskSection(tasks []acontext.Task) string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, "- "+t.String())
	}
	return strings.Join(lines, "\n")
}

// packPreviousProgressSection collects the last n progress lines across the
// most recent tasks, oldest first.
func packPreviousProgressSection(tasks []acontext.Task, n int) string {
	// Walk tasks newest-first, collecting newest-first, then reverse once.
	var lines []string
	for i := len(tasks) - 1; i >= 0; i-- {
		take := n - len(lines)
		if take <= 0 {
			break
		}
		ps := tasks[i].Data.Progresses
		if len(ps) > take {
			ps = ps[len(ps)-take:]
		}
		for j := len(ps) - 1; j >= 0; j-- {
			lines = append(lines, fmt.Sprintf("Task %d: %s", tasks[i].Order, ps[j]))
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// packCurrentMessageWithIDs renders the flush batch with stable indices the
// agent uses in message_indices arguments.
func packCurrentMessageWithIDs(messages []acontext.Message) string {
	lines := make([]string, 0, len(messages))
	for i, m := range messages {
		lines = append(lines, fmt.Sprintf("<message id=%d> %s </message>", i, m.Render(currentMessageTruncate)))
	}
	return strings.Join(lines, "\n")
}

// packTaskData splits a task into the three SOP prompt inputs: description,
// bulleted user preferences, and the rendered raw history.
func packTaskData(task acontext.Task, messages []acontext.Message) (desc, preferences, rawHistory string) {
	prefLines := make([]string, 0, len(task.Data.UserPreferences))
	for _, p := range task.Data.UserPreferences {
		prefLines = append(prefLines, "- "+p)
	}
	msgLines := make([]string, 0, len(messages))
	for _, m := range messages {
		msgLines = append(msgLines, m.Render(historyTruncate))
	}
	return task.Data.TaskDescription, strings.Join(prefLines, "\n"), strings.Join(msgLines, "\n")
}

// packOneTaskProgress renders one task's progress history as a tagged block.
func packOneTaskProgress(task acontext.Task) string {
	lines := make([]string, 0, len(task.Data.Progresses))
	for _, p := range task.Data.Progresses {
		lines = append(lines, "- "+p)
	}
	return fmt.Sprintf("<task id=%d>\nDescription: %s\nProgresses:\n%s\n</task>\n",
		task.Order, task.Data.TaskDescription, strings.Join(lines, "\n"))
}

// packPreviousTaskContext renders the preceding tasks followed by a pointer
// to the task under analysis.
func packPreviousTaskContext(previous []acontext.Task, current acontext.Task) string {
	blocks := make([]string, 0, len(previous))
	for _, t := range previous {
		blocks = append(blocks, packOneTaskProgress(t))
	}
	return fmt.Sprintf("%s\nYou're looking at task %d.\n", strings.Join(blocks, "\n"), current.Order)
}

// packCandidateDataList renders candidates with the indices the construction
// agent uses in candidate_index arguments.
func packCandidateDataList(candidates []acontext.CandidateData) string {
	lines := make([]string, 0, len(candidates))
	for i, c := range candidates {
		data, _ := json.Marshal(c.Data)
		lines = append(lines, fmt.Sprintf("<candidate_data id=%d>%s</candidate_data>", i, data))
	}
	return strings.Join(lines, "\n")
}
