package bus

import (
	acontext "github.com/slyt3/Acontext"
)

// Payload is a declared event schema. Publish and consume both validate, so
// a malformed event is rejected at the edge that produced it.
type Payload interface {
	Validate() error
}

// ConsumerConfig names the broker objects of one consumer.
type ConsumerConfig struct {
	Exchange   string
	RoutingKey string
	Queue      string
}

// The three event bindings of the core.
var (
	SessionMessageInsert = ConsumerConfig{
		Exchange:   "session.message",
		RoutingKey: "session.message.insert",
		Queue:      "session.message.insert",
	}
	SpaceTaskComplete = ConsumerConfig{
		Exchange:   "space_task",
		RoutingKey: "space_task_complete",
		Queue:      "space_task_complete",
	}
	SpaceSOPComplete = ConsumerConfig{
		Exchange:   "space_sop",
		RoutingKey: "space_sop_complete",
		Queue:      "space_sop_complete",
	}
)

// InsertNewMessage announces a message appended to a session.
type InsertNewMessage struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

func (p InsertNewMessage) Validate() error {
	if p.ProjectID == "" || p.SessionID == "" || p.MessageID == "" {
		return acontext.Validation("insert_new_message: project_id, session_id and message_id are required")
	}
	return nil
}

// NewTaskComplete announces a task that transitioned to success.
type NewTaskComplete struct {
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id"`
}

func (p NewTaskComplete) Validate() error {
	if p.ProjectID == "" || p.SessionID == "" || p.TaskID == "" {
		return acontext.Validation("new_task_complete: project_id, session_id and task_id are required")
	}
	return nil
}

// SOPComplete carries an abstracted SOP awaiting space construction.
type SOPComplete struct {
	ProjectID string           `json:"project_id"`
	SpaceID   string           `json:"space_id"`
	TaskID    string           `json:"task_id"`
	SOPData   acontext.SOPData `json:"sop_data"`
}

func (p SOPComplete) Validate() error {
	if p.ProjectID == "" || p.SpaceID == "" || p.TaskID == "" {
		return acontext.Validation("sop_complete: project_id, space_id and task_id are required")
	}
	return p.SOPData.Validate()
}
