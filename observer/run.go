package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartRun opens an agent-level span that parents the LLM and embedding
// spans of one engine run. The returned end function records status,
// duration and run count; call it exactly once with the run's error.
func (inst *Instruments) StartRun(ctx context.Context, agentName string) (context.Context, func(error)) {
	ctx, span := inst.Tracer.Start(ctx, "agent.run", trace.WithAttributes(
		AttrAgentName.String(agentName),
	))
	start := time.Now()

	end := func(err error) {
		defer span.End()
		durationMs := float64(time.Since(start).Milliseconds())
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(AttrAgentStatus.String(status))

		inst.AgentRuns.Add(ctx, 1, metric.WithAttributes(
			AttrAgentName.String(agentName),
			attribute.String("status", status),
		))
		inst.AgentDuration.Record(ctx, durationMs, metric.WithAttributes(
			AttrAgentName.String(agentName),
		))
	}
	return ctx, end
}
