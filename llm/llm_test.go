package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "plain object", raw: `{"a": 1}`, want: `{"a": 1}`, wantOK: true},
		{name: "json fence", raw: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`, wantOK: true},
		{name: "bare fence", raw: "```\n{\"a\": 1}\n```", want: `{"a": 1}`, wantOK: true},
		{name: "prose around", raw: "Here you go: {\"a\": {\"b\": 2}} hope it helps", want: `{"a": {"b": 2}}`, wantOK: true},
		{name: "brace in string", raw: `note {"a": "x}y"} tail`, want: `{"a": "x}y"}`, wantOK: true},
		{name: "no object", raw: "not json at all", wantOK: false},
		{name: "unbalanced", raw: `{"a": 1`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("short string changed: %q", got)
	}
	if got := Truncate("hello", 3); got != "hel" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("ééééé", 2); got != "éé" {
		t.Fatalf("multibyte truncate got %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("zero limit got %q", got)
	}
}

func TestPromptMessages(t *testing.T) {
	p := Prompt{
		System:  "sys",
		User:    "now",
		History: []Message{{Content: "earlier"}, {Role: "assistant", Content: "reply"}},
	}
	msgs := p.Messages()
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	if got := strings.Join(roles, ","); got != "system,user,assistant,user" {
		t.Fatalf("roles = %s", got)
	}
	if msgs[len(msgs)-1].Content != "now" {
		t.Fatalf("last message should be the user turn")
	}
}

func TestNewProviders(t *testing.T) {
	if _, err := New(Settings{Provider: "openai", Model: "m"}); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
	if _, err := New(Settings{Provider: "deepseek", Model: "m", APIKey: "k"}); err == nil {
		t.Fatal("deepseek without base_url should fail")
	}
	if _, err := New(Settings{Provider: "nope"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
	c, err := New(Settings{Provider: "mock"})
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, ok := c.(Mock); !ok {
		t.Fatalf("mock provider returned %T", c)
	}
}

func TestMockRubricIsJSON(t *testing.T) {
	out, err := Mock{}.Complete(context.Background(), Prompt{User: `respond with "overall_score"`})
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("mock rubric not JSON: %v", err)
	}
	if _, ok := v["overall_score"]; !ok {
		t.Fatal("overall_score missing")
	}
}

func TestUnavailableReturnsErr(t *testing.T) {
	_, err := Unavailable{Err: ErrNoCredentials}.Complete(context.Background(), Prompt{User: "hi"})
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v", err)
	}
}
