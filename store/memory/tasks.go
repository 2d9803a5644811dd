package memory

import (
	"context"
	"sort"

	acontext "github.com/slyt3/Acontext"
)

const planningTaskDescription = "collecting planning&requirments"

func (s *Store) FetchTask(ctx context.Context, taskID string) (acontext.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.Task{}, acontext.NotFoundf("task %s not found", taskID)
	}
	out := *t
	out.RawMessageIDs = s.taskMessageIDsLocked(taskID)
	return out, nil
}

func (s *Store) FetchPlanningTask(ctx context.Context, sessionID string) (*acontext.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.SessionID == sessionID && t.IsPlanning {
			out := *t
			out.RawMessageIDs = s.taskMessageIDsLocked(t.ID)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) FetchCurrentTasks(ctx context.Context, sessionID string) ([]acontext.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []acontext.Task
	for _, t := range s.tasks {
		if t.SessionID == sessionID && !t.IsPlanning {
			cp := *t
			cp.RawMessageIDs = s.taskMessageIDsLocked(t.ID)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *Store) FetchPreviousTasks(ctx context.Context, sessionID string, beforeOrder, limit int) ([]acontext.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []acontext.Task
	for _, t := range s.tasks {
		if t.SessionID == sessionID && !t.IsPlanning && t.Order < beforeOrder {
			out = append(out, *t)
		}
	}
	// Keep the closest limit tasks below beforeOrder, ascending.
	sort.Slice(out, func(i, j int) bool { return out[i].Order > out[j].Order })
	if len(out) > limit {
		out = out[:limit]
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) InsertTask(ctx context.Context, projectID, sessionID string, afterOrder int, data acontext.TaskData, status acontext.TaskStatus) (acontext.Task, error) {
	if !acontext.ValidTaskStatus(status) {
		return acontext.Task{}, acontext.Validationf("invalid task status: %s", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.SessionID == sessionID && t.Order > afterOrder {
			t.Order++
		}
	}
	now := acontext.NowUnix()
	t := acontext.Task{
		ID:        acontext.NewID(),
		SessionID: sessionID,
		Order:     afterOrder + 1,
		Status:    status,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = &t
	s.taskProject[t.ID] = projectID
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, taskID string, upd acontext.TaskUpdate) (acontext.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.Task{}, acontext.NotFoundf("task %s not found", taskID)
	}
	if upd.Status != nil {
		if !acontext.ValidTaskStatus(*upd.Status) {
			return acontext.Task{}, acontext.Validationf("invalid task status: %s", *upd.Status)
		}
		if t.Status == acontext.TaskSuccess && *upd.Status != acontext.TaskSuccess {
			return acontext.Task{}, acontext.Validationf("task %s is already success and cannot transition to %s", taskID, *upd.Status)
		}
		t.Status = *upd.Status
	}
	if upd.Order != nil {
		t.Order = *upd.Order
	}
	if upd.Data != nil {
		t.Data = *upd.Data
	}
	if upd.Description != nil {
		t.Data.TaskDescription = *upd.Description
	}
	t.UpdatedAt = acontext.NowUnix()
	return *t, nil
}

func (s *Store) SetTaskSpaceDigested(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	t.SpaceDigested = true
	t.UpdatedAt = acontext.NowUnix()
	return nil
}

func (s *Store) AppendMessagesToTask(ctx context.Context, messageIDs []string, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	if t.Status == acontext.TaskSuccess {
		return acontext.Validationf("task %s is success and cannot receive new messages", taskID)
	}
	s.retargetLocked(messageIDs, taskID)
	return nil
}

func (s *Store) AppendProgressToTask(ctx context.Context, taskID, progress string, userPreference *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	t.Data.Progresses = append(t.Data.Progresses, progress)
	if userPreference != nil {
		t.Data.UserPreferences = append(t.Data.UserPreferences, *userPreference)
	}
	t.UpdatedAt = acontext.NowUnix()
	return nil
}

func (s *Store) AppendMessagesToPlanningSection(ctx context.Context, projectID, sessionID string, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var planning *acontext.Task
	for _, t := range s.tasks {
		if t.SessionID == sessionID && t.IsPlanning {
			planning = t
			break
		}
	}
	if planning == nil {
		now := acontext.NowUnix()
		planning = &acontext.Task{
			ID:         acontext.NewID(),
			SessionID:  sessionID,
			Order:      0,
			Status:     acontext.TaskPending,
			Data:       acontext.TaskData{TaskDescription: planningTaskDescription},
			IsPlanning: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.tasks[planning.ID] = planning
		s.taskProject[planning.ID] = projectID
	}
	s.retargetLocked(messageIDs, planning.ID)
	return nil
}

func (s *Store) AppendSOPThinking(ctx context.Context, taskID, thinking string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return acontext.NotFoundf("task %s not found", taskID)
	}
	t.Data.SOPThinking = thinking
	t.UpdatedAt = acontext.NowUnix()
	return nil
}

func (s *Store) CountLearningStatus(ctx context.Context, sessionID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var digested, notDigested int
	for _, t := range s.tasks {
		if t.SessionID != sessionID || t.IsPlanning || t.Status != acontext.TaskSuccess {
			continue
		}
		if t.SpaceDigested {
			digested++
		} else {
			notDigested++
		}
	}
	return digested, notDigested, nil
}

// --- messages ---

func (s *Store) FetchPendingMessages(ctx context.Context, sessionID string) ([]acontext.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []acontext.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID && m.ProcessStatus == "pending" {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) FetchTaskMessages(ctx context.Context, taskID string) ([]acontext.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []acontext.Message
	for _, m := range s.messages {
		if m.TaskID != nil && *m.TaskID == taskID {
			out = append(out, *m)
		}
	}
	sortMessages(out)
	return out, nil
}

func (s *Store) SetMessagesProcessStatus(ctx context.Context, messageIDs []string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range messageIDs {
		if m, ok := s.messages[id]; ok {
			m.ProcessStatus = status
		}
	}
	return nil
}

// --- helpers ---

func (s *Store) retargetLocked(messageIDs []string, taskID string) {
	for _, id := range messageIDs {
		if m, ok := s.messages[id]; ok {
			tid := taskID
			m.TaskID = &tid
		}
	}
}

func (s *Store) taskMessageIDsLocked(taskID string) []string {
	var msgs []acontext.Message
	for _, m := range s.messages {
		if m.TaskID != nil && *m.TaskID == taskID {
			msgs = append(msgs, *m)
		}
	}
	sortMessages(msgs)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

// sortMessages orders by creation time, breaking ties by id so the order is
// deterministic (ids are time-sortable UUIDv7).
func sortMessages(msgs []acontext.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
}
