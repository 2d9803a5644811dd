package acontext

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOfConstructors(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{BadRequest("x"), KindBadRequest},
		{NotFound("x"), KindNotFound},
		{Conflict("x"), KindConflict},
		{Validation("x"), KindValidation},
		{LLMError("x"), KindLLM},
		{Internal("x", nil), KindInternal},
		{NotFoundf("session %s", "abc"), KindNotFound},
		{Validationf("limit %d", 99), KindValidation},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Errorf("KindOf(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestKindOfFallbacks(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("plain error kind = %q, want internal", got)
	}
	llm := &ErrLLM{Provider: "openai", Message: "rate limited"}
	if got := KindOf(llm); got != KindLLM {
		t.Errorf("ErrLLM kind = %q, want llm_error", got)
	}
	if got := KindOf(fmt.Errorf("chat: %w", llm)); got != KindLLM {
		t.Errorf("wrapped ErrLLM kind = %q, want llm_error", got)
	}
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NotFound("session missing"))
	if !errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Error("kind-only target did not match")
	}
	if errors.Is(err, &Error{Kind: KindConflict}) {
		t.Error("wrong kind matched")
	}
	if errors.Is(err, &Error{Kind: KindNotFound, Msg: "other message"}) {
		t.Error("mismatched message matched")
	}
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("query tasks", cause)
	if !errors.Is(err, cause) {
		t.Error("cause not reachable via errors.Is")
	}
	if got := err.Error(); got != "query tasks: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(Validation("bad index")) {
		t.Error("validation error not detected")
	}
	if IsValidation(NotFound("x")) {
		t.Error("not_found classified as validation")
	}
	if IsValidation(nil) {
		t.Error("nil classified as validation")
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"abc", 0},
		{"-3", 0},
		{"0", 0},
		{"5", 5 * time.Second},
		{"120", 2 * time.Minute},
	}
	for _, c := range cases {
		if got := ParseRetryAfter(c.in); got != c.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
