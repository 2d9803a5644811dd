package acontext

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestToolPoolPreservesRegistrationOrder(t *testing.T) {
	pool := NewToolPool(
		mkTool("gamma", nil),
		mkTool("alpha", nil),
		mkTool("beta", nil),
	)
	defs := pool.Definitions()
	want := []string{"gamma", "alpha", "beta"}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestToolPoolDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate tool did not panic")
		}
	}()
	NewToolPool(mkTool("dup", nil), mkTool("dup", nil))
}

func TestToolPoolGet(t *testing.T) {
	pool := NewToolPool(mkTool("present", nil))
	if _, ok := pool.Get("present"); !ok {
		t.Error("registered tool not found")
	}
	if _, ok := pool.Get("absent"); ok {
		t.Error("unregistered tool found")
	}
}

func TestReportThinkingToolLogsAndHooks(t *testing.T) {
	var captured string
	tool := ReportThinkingTool(nil, func(_ context.Context, _ *loopState, thinking string) error {
		captured = thinking
		return nil
	})

	got, err := tool.Handler(context.Background(), nil, json.RawMessage(`{"thinking":"check the folder tree first"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q", got)
	}
	if captured != "check the folder tree first" {
		t.Errorf("hook captured %q", captured)
	}
}

func TestReportThinkingToolRejectsBadArguments(t *testing.T) {
	tool := ReportThinkingTool[loopState](nil, nil)
	_, err := tool.Handler(context.Background(), nil, json.RawMessage(`not json`))
	if !IsValidation(err) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestReportThinkingToolPropagatesHookError(t *testing.T) {
	boom := errors.New("store down")
	tool := ReportThinkingTool(nil, func(context.Context, *loopState, string) error {
		return boom
	})
	_, err := tool.Handler(context.Background(), nil, json.RawMessage(`{"thinking":"x"}`))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want hook error", err)
	}
}
