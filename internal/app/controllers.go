package app

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/bus"
)

// previousTaskLimit bounds how many preceding tasks feed the SOP agent's
// context section.
const previousTaskLimit = 10

// FlushSession drains the session's pending messages through the
// task-extraction agent and announces newly successful tasks on the bus.
func (a *App) FlushSession(ctx context.Context, projectID, sessionID string) error {
	session, err := a.store.FetchSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.ProjectID != projectID {
		return acontext.NotFoundf("session %s not found", sessionID)
	}
	return a.processPending(ctx, projectID, sessionID)
}

func (a *App) processPending(ctx context.Context, projectID, sessionID string) error {
	msgs, err := a.store.FetchPendingMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		a.logger.Debug("no pending messages", "session_id", sessionID)
		return nil
	}

	runCtx, end := a.startRun(ctx, "task_extract")
	err = a.extractor.Run(runCtx, projectID, sessionID, msgs)
	end(err)
	if err != nil {
		return err
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := a.store.SetMessagesProcessStatus(ctx, ids, "success"); err != nil {
		return err
	}

	// Undigested success tasks include ones whose earlier digestion run
	// failed; republishing retries them.
	tasks, err := a.store.FetchCurrentTasks(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status != acontext.TaskSuccess || t.SpaceDigested {
			continue
		}
		if err := a.publisher.PublishNewTaskComplete(ctx, projectID, sessionID, t.ID); err != nil {
			return err
		}
		a.logger.Info("task complete published", "session_id", sessionID, "task_id", t.ID)
	}
	return nil
}

// HandleNewMessage consumes session.message.insert events.
func (a *App) HandleNewMessage(ctx context.Context, body bus.InsertNewMessage, _ amqp.Delivery) error {
	return a.processPending(ctx, body.ProjectID, body.SessionID)
}

// HandleTaskComplete consumes space_task_complete events: it checks the
// session's space link and the task's digestion state, then runs the SOP
// abstraction agent with the project's custom scoring rules.
func (a *App) HandleTaskComplete(ctx context.Context, body bus.NewTaskComplete, _ amqp.Delivery) error {
	session, err := a.store.FetchSession(ctx, body.SessionID)
	if err != nil {
		return err
	}
	if session.SpaceID == nil {
		a.logger.Info("session has no linked space", "session_id", body.SessionID)
		return nil
	}
	task, err := a.store.FetchTask(ctx, body.TaskID)
	if err != nil {
		return err
	}
	if task.Status != acontext.TaskSuccess {
		return a.ProcessPendingTask(ctx, body)
	}
	if task.SpaceDigested {
		a.logger.Info("task already digested", "task_id", task.ID)
		return nil
	}
	project, err := a.store.FetchProject(ctx, body.ProjectID)
	if err != nil {
		return err
	}
	pcfg := project.Config()

	previous, err := a.store.FetchPreviousTasks(ctx, body.SessionID, task.Order, previousTaskLimit)
	if err != nil {
		return err
	}
	messages, err := a.store.FetchTaskMessages(ctx, task.ID)
	if err != nil {
		return err
	}

	runCtx, end := a.startRun(ctx, "sop_abstract")
	err = a.abstractor.Run(runCtx, body.ProjectID, *session.SpaceID, task, previous, messages, pcfg.SOPCustomScoringRules)
	end(err)
	return err
}

// ProcessPendingTask handles completion events for tasks that are not in
// success state. There is nothing to digest yet; a later flush republishes
// the event once the task succeeds.
func (a *App) ProcessPendingTask(ctx context.Context, body bus.NewTaskComplete) error {
	a.logger.Debug("task not successful yet, skipping", "task_id", body.TaskID)
	return nil
}

// HandleSOPComplete consumes space_sop_complete events and runs the
// space-construction agent. The agent's exit hook marks successfully
// inserted tasks as digested.
func (a *App) HandleSOPComplete(ctx context.Context, body bus.SOPComplete, _ amqp.Delivery) error {
	task, err := a.store.FetchTask(ctx, body.TaskID)
	if err != nil {
		return err
	}
	if task.SpaceDigested {
		a.logger.Info("task already digested", "task_id", task.ID)
		return nil
	}
	project, err := a.store.FetchProject(ctx, body.ProjectID)
	if err != nil {
		return err
	}
	// A project-level config overrides the service default.
	iters := a.cfg.Agent.SpaceIterations
	if len(project.Configs) > 0 {
		iters = project.Config().SpaceConstructMaxIterations
	}

	runCtx, end := a.startRun(ctx, "space_construct")
	err = a.constructor.Run(runCtx, body.SpaceID, []string{body.TaskID}, []acontext.SOPData{body.SOPData}, iters)
	end(err)
	return err
}
