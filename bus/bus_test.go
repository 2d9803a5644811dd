package bus

import (
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	acontext "github.com/slyt3/Acontext"
)

func TestDecide(t *testing.T) {
	internal := acontext.Internal("db down", nil)
	cases := []struct {
		name    string
		err     error
		retries int
		want    action
	}{
		{"nil error acks", nil, 0, actAck},
		{"validation acks", acontext.Validation("bad payload"), 0, actAck},
		{"not found acks", acontext.NotFound("gone"), 2, actAck},
		{"internal retries", internal, 0, actRetry},
		{"internal below limit retries", internal, 2, actRetry},
		{"internal at limit parks", internal, 3, actPark},
		{"plain error is internal", errors.New("boom"), 0, actRetry},
	}
	for _, c := range cases {
		if got := decide(c.err, c.retries, 3); got != c.want {
			t.Errorf("%s: decide = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestRetryDelayDoubles(t *testing.T) {
	unit := 2 * time.Second
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for n, w := range want {
		if got := retryDelay(unit, n); got != w {
			t.Errorf("retryDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestRetryCountHeaderTypes(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{}, 0},
		{amqp.Table{retryCountHeader: int32(2)}, 2},
		{amqp.Table{retryCountHeader: int64(3)}, 3},
		{amqp.Table{retryCountHeader: float64(1)}, 1},
		{amqp.Table{retryCountHeader: "junk"}, 0},
	}
	for _, c := range cases {
		if got := retryCount(c.headers); got != c.want {
			t.Errorf("retryCount(%v) = %d, want %d", c.headers, got, c.want)
		}
	}
}

func TestPayloadValidation(t *testing.T) {
	valid := []Payload{
		InsertNewMessage{ProjectID: "p", SessionID: "s", MessageID: "m"},
		NewTaskComplete{ProjectID: "p", SessionID: "s", TaskID: "t"},
		SOPComplete{ProjectID: "p", SpaceID: "s", TaskID: "t",
			SOPData: acontext.SOPData{UseWhen: "x", ToolSOPs: []acontext.SOPStep{{ToolName: "click", Action: "Star"}}}},
	}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("%T should validate: %v", p, err)
		}
	}

	invalid := []Payload{
		InsertNewMessage{SessionID: "s", MessageID: "m"},
		NewTaskComplete{ProjectID: "p"},
		SOPComplete{ProjectID: "p", SpaceID: "s", TaskID: "t"}, // empty sop
	}
	for _, p := range invalid {
		if err := p.Validate(); !acontext.IsValidation(err) {
			t.Errorf("%T should fail validation, got %v", p, err)
		}
	}
}

func TestConsumerBindings(t *testing.T) {
	if SpaceTaskComplete.Exchange != "space_task" || SpaceTaskComplete.RoutingKey != "space_task_complete" {
		t.Errorf("task-complete binding = %+v", SpaceTaskComplete)
	}
	if SessionMessageInsert.Exchange != "session.message" || SessionMessageInsert.RoutingKey != "session.message.insert" {
		t.Errorf("new-message binding = %+v", SessionMessageInsert)
	}
	if SpaceSOPComplete.Exchange != "space_sop" || SpaceSOPComplete.RoutingKey != "space_sop_complete" {
		t.Errorf("sop-complete binding = %+v", SpaceSOPComplete)
	}
	for _, cfg := range []ConsumerConfig{SessionMessageInsert, SpaceTaskComplete, SpaceSOPComplete} {
		if cfg.Queue == "" {
			t.Errorf("config %+v missing queue", cfg)
		}
	}
}
