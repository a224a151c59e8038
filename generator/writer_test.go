package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"newsroom_writer/framework"
	"newsroom_writer/llm"
	"newsroom_writer/scoring"
)

// scriptedLLM returns replies in order and remembers every prompt.
type scriptedLLM struct {
	replies []string
	failAt  int // 1-based call index that returns an error; 0 never
	prompts []llm.Prompt
}

func (s *scriptedLLM) Complete(_ context.Context, p llm.Prompt) (string, error) {
	s.prompts = append(s.prompts, p)
	n := len(s.prompts)
	if n == s.failAt {
		return "", errors.New("upstream unavailable")
	}
	if n <= len(s.replies) {
		return s.replies[n-1], nil
	}
	return fmt.Sprintf("draft %d", n), nil
}

type scriptedScorer struct {
	scores []float64
	texts  []string
}

func (s *scriptedScorer) ScoreWithVerdict(_ context.Context, text string, threshold float64) scoring.Verdict {
	s.texts = append(s.texts, text)
	score := s.scores[min(len(s.texts), len(s.scores))-1]
	return scoring.Verdict{
		Score:     score,
		Feedback:  fmt.Sprintf("feedback for round %d", len(s.texts)),
		Passes:    score >= threshold,
		Threshold: threshold,
	}
}

func newWriter(t *testing.T, client llm.Client, scorer Scorer, maxIter int) *IterativeWriter {
	t.Helper()
	agent, err := NewAgent(client)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewIterativeWriter(agent, scorer, nil, WriterConfig{MaxIterations: maxIter, ScoreThreshold: 0.8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

var req = WriteRequest{SourceContent: "Central bank raised rates to 21% on Friday.", UserPrompt: "Focus on inflation"}

func TestInvokeAcceptsFirstDraft(t *testing.T) {
	client := &scriptedLLM{}
	scorer := &scriptedScorer{scores: []float64{0.9}}
	res, err := newWriter(t, client, scorer, 5).Invoke(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Iterations != 1 || len(res.History) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.FinalArticle != "draft 1" || res.Score != 0.9 || res.Message != "" {
		t.Fatalf("result = %+v", res)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("llm called %d times", len(client.prompts))
	}
}

func TestInvokeExhaustsBudget(t *testing.T) {
	client := &scriptedLLM{}
	scorer := &scriptedScorer{scores: []float64{0.3, 0.6, 0.5}}
	res, err := newWriter(t, client, scorer, 3).Invoke(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("should not succeed")
	}
	if len(res.History) != 3 || res.Iterations != 3 {
		t.Fatalf("history %d iterations %d", len(res.History), res.Iterations)
	}
	if res.FinalArticle != "draft 2" || res.Score != 0.6 {
		t.Fatalf("best attempt = %q (%v)", res.FinalArticle, res.Score)
	}
	if res.Message != "Did not meet threshold after 3 iterations. Returning best attempt." {
		t.Fatalf("message = %q", res.Message)
	}
	for i, rec := range res.History {
		if rec.Iteration != i+1 {
			t.Fatalf("record %d has iteration %d", i, rec.Iteration)
		}
		if rec.Passes {
			t.Fatalf("record %d should not pass", i)
		}
	}
}

func TestBestAttemptSelection(t *testing.T) {
	history := []IterationRecord{
		{Iteration: 1, Article: "a", Score: 0.4},
		{Iteration: 2, Article: "b", Score: 0.7},
		{Iteration: 3, Article: "c", Score: 0.5},
	}
	best, ok := bestAttempt(history)
	if !ok || best.Article != "b" {
		t.Fatalf("best = %+v", best)
	}
	tie, _ := bestAttempt([]IterationRecord{{Article: "first", Score: 0.5}, {Article: "second", Score: 0.5}})
	if tie.Article != "first" {
		t.Fatalf("tie should keep the earliest, got %q", tie.Article)
	}
	if _, ok := bestAttempt(nil); ok {
		t.Fatal("empty history has no best")
	}
}

func TestRefineReceivesFeedbackVerbatim(t *testing.T) {
	client := &scriptedLLM{}
	scorer := &scriptedScorer{scores: []float64{0.2, 0.85}}
	res, err := newWriter(t, client, scorer, 5).Invoke(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Iterations != 2 || res.FinalArticle != "draft 2" {
		t.Fatalf("result = %+v", res)
	}
	refine := client.prompts[1].User
	for _, want := range []string{"draft 1", "feedback for round 1", req.SourceContent} {
		if !strings.Contains(refine, want) {
			t.Fatalf("refine prompt missing %q", want)
		}
	}
	if strings.Join(scorer.texts, "|") != "draft 1|draft 2" {
		t.Fatalf("scored %v", scorer.texts)
	}
}

func TestInvokePropagatesLLMError(t *testing.T) {
	client := &scriptedLLM{failAt: 2}
	scorer := &scriptedScorer{scores: []float64{0.1}}
	_, err := newWriter(t, client, scorer, 5).Invoke(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "iteration 2") || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("err = %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("llm should not be retried, called %d times", len(client.prompts))
	}
}

func TestInvokeRejectsEmptySource(t *testing.T) {
	client := &scriptedLLM{}
	_, err := newWriter(t, client, &scriptedScorer{scores: []float64{1}}, 5).
		Invoke(context.Background(), WriteRequest{SourceContent: "  "})
	if !errors.Is(err, ErrNoSourceContent) {
		t.Fatalf("err = %v", err)
	}
	if len(client.prompts) != 0 {
		t.Fatal("llm should not be called")
	}
}

func TestDraftPromptContents(t *testing.T) {
	long := strings.Repeat("s", 9000)
	p := BuildDraftPrompt(framework.GenericGuidance, WriteRequest{SourceContent: long, SourceLanguage: "Russian"})
	if !strings.Contains(p.System, framework.GenericGuidance) {
		t.Fatal("framework context missing from system prompt")
	}
	if !strings.Contains(p.User, "USER INSTRUCTIONS: "+DefaultUserPrompt) {
		t.Fatal("default user prompt missing")
	}
	if strings.Count(p.User, "s") > 8000+200 {
		t.Fatal("source not truncated")
	}
	if !strings.Contains(p.User, "written in Russian") {
		t.Fatal("language note missing")
	}
	if strings.Contains(BuildDraftPrompt("", WriteRequest{SourceContent: "x", SourceLanguage: "English"}).User, "written in") {
		t.Fatal("English source should not get a language note")
	}
}

func TestNewIterativeWriterValidates(t *testing.T) {
	agent, _ := NewAgent(&scriptedLLM{})
	if _, err := NewIterativeWriter(agent, &scriptedScorer{}, nil, WriterConfig{MaxIterations: 0, ScoreThreshold: 0.8}, nil); err == nil {
		t.Fatal("zero iterations should fail")
	}
	if _, err := NewIterativeWriter(agent, &scriptedScorer{}, nil, WriterConfig{MaxIterations: 1, ScoreThreshold: 1.5}, nil); err == nil {
		t.Fatal("threshold above 1 should fail")
	}
	if _, err := NewIterativeWriter(nil, &scriptedScorer{}, nil, DefaultWriterConfig(), nil); err == nil {
		t.Fatal("nil agent should fail")
	}
}

func TestNextState(t *testing.T) {
	tests := []struct {
		name   string
		passes bool
		done   int
		max    int
		want   State
	}{
		{name: "pass", passes: true, done: 1, max: 5, want: StateAccepted},
		{name: "pass on last round", passes: true, done: 5, max: 5, want: StateAccepted},
		{name: "retry", done: 2, max: 5, want: StateRefining},
		{name: "exhausted", done: 5, max: 5, want: StateExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextState(tt.passes, tt.done, tt.max); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
