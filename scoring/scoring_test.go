package scoring

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"newsroom_writer/features"
	"newsroom_writer/framework"
	"newsroom_writer/llm"
	"newsroom_writer/nn"
)

const longText = "Russia raised its key interest rate to 21% on Friday, the central bank said in a statement. " +
	"Governor Elvira Nabiullina said inflation remained well above target."

// #region doubles

type countingStat struct {
	value float64
	calls int
}

func (s *countingStat) Score(string) float64 {
	s.calls++
	return s.value
}

type countingRubric struct {
	value float64
	calls int
}

func (r *countingRubric) Assess(context.Context, string, *framework.Framework) Assessment {
	r.calls++
	return Assessment{Overall: r.value, Feedback: "rubric feedback\n"}
}

type fixedLLM struct {
	reply  string
	err    error
	prompt llm.Prompt
}

func (f *fixedLLM) Complete(_ context.Context, p llm.Prompt) (string, error) {
	f.prompt = p
	return f.reply, f.err
}

type panicLLM struct{}

func (panicLLM) Complete(context.Context, llm.Prompt) (string, error) { panic("boom") }

// #endregion

func newCombined(t *testing.T, stat StatisticalScorer, rub RubricScorer) *Combined {
	t.Helper()
	c, err := NewCombined(stat, rub, nil, DefaultWeights(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCombinedWeighting(t *testing.T) {
	stat := &countingStat{value: 0.8}
	rub := &countingRubric{value: 0.2}
	v := newCombined(t, stat, rub).ScoreWithVerdict(context.Background(), longText, DefaultThreshold)
	if math.Abs(v.Score-0.38) > 1e-9 {
		t.Fatalf("score = %v, want 0.38", v.Score)
	}
	if v.Passes {
		t.Fatal("0.38 should not pass 0.80")
	}
	if v.Message != "NEEDS REVISION - Score 0.380 below threshold 0.800" {
		t.Fatalf("message = %q", v.Message)
	}
	if !strings.HasPrefix(v.Feedback, "COMBINED SCORE: 0.380/1.00\n  - Statistical Score: 0.800 (30% weight)\n  - LLM Score:         0.200 (70% weight)\n\n") {
		t.Fatalf("feedback header = %q", v.Feedback)
	}
	if !strings.HasSuffix(v.Feedback, "rubric feedback\n") {
		t.Fatal("rubric feedback not appended")
	}
	if stat.calls != 1 || rub.calls != 1 {
		t.Fatalf("calls stat=%d rubric=%d", stat.calls, rub.calls)
	}
}

func TestCombinedAccepted(t *testing.T) {
	v := newCombined(t, &countingStat{value: 0.9}, &countingRubric{value: 0.85}).
		ScoreWithVerdict(context.Background(), longText, 0.8)
	if !v.Passes {
		t.Fatalf("expected pass, got %+v", v)
	}
	if v.Message != "ACCEPTED - Score 0.865 meets threshold 0.800" {
		t.Fatalf("message = %q", v.Message)
	}
}

func TestShortTextGuard(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "whitespace", text: "   \n "},
		{name: "nine words", text: "one two three four five six seven eight nine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stat := &countingStat{value: 1}
			rub := &countingRubric{value: 1}
			v := newCombined(t, stat, rub).ScoreWithVerdict(context.Background(), tt.text, 0.05)
			if v.Score != ShortTextScore || v.Passes {
				t.Fatalf("got score %v passes %v", v.Score, v.Passes)
			}
			if stat.calls != 0 || rub.calls != 0 {
				t.Fatalf("sub-scorers called: stat=%d rubric=%d", stat.calls, rub.calls)
			}
			if !strings.Contains(v.Feedback, "too short") {
				t.Fatalf("feedback = %q", v.Feedback)
			}
		})
	}
}

func TestCombinedReplacesNonFinite(t *testing.T) {
	tests := []struct {
		name      string
		stat, rub float64
		want      float64
	}{
		{name: "nan statistical", stat: math.NaN(), rub: 1, want: 0.3*0.5 + 0.7},
		{name: "inf rubric", stat: 1, rub: math.Inf(1), want: 0.3 + 0.7*0.5},
		{name: "both bad", stat: math.Inf(-1), rub: math.NaN(), want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newCombined(t, &countingStat{value: tt.stat}, &countingRubric{value: tt.rub}).
				ScoreWithVerdict(context.Background(), longText, DefaultThreshold)
			if math.Abs(v.Score-tt.want) > 1e-9 {
				t.Fatalf("score = %v, want %v", v.Score, tt.want)
			}
			if v.Score < 0 || v.Score > 1 {
				t.Fatalf("score out of bounds: %v", v.Score)
			}
		})
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights: %v", err)
	}
	if err := (Weights{Statistical: 0.5, Rubric: 0.6}).Validate(); err == nil {
		t.Fatal("weights summing to 1.1 should fail")
	}
	if _, err := NewCombined(&countingStat{}, &countingRubric{}, nil, Weights{Statistical: -0.5, Rubric: 1.5}, nil); err == nil {
		t.Fatal("negative weight should fail")
	}
}

func TestStatisticalMissingWeights(t *testing.T) {
	s := NewStatistical(filepath.Join(t.TempDir(), "model_weights.npz"), nil, nil)
	if got := s.Score(longText); got != Neutral {
		t.Fatalf("score = %v, want %v", got, Neutral)
	}
}

func TestStatisticalWithTrainedWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_weights.npz")
	cfg := nn.DefaultConfig(features.Size)
	cfg.Seed = 42
	m, err := nn.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	s := NewStatistical(path, nil, nil)
	for _, text := range []string{"", longText, strings.Repeat("WORD 123 ", 500)} {
		got := s.Score(text)
		if got < 0 || got > 1 {
			t.Fatalf("score %v out of [0,1] for %q", got, text)
		}
	}
	want, err := m.PredictOne(features.Extract(longText).Slice())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Score(longText); math.Abs(got-math.Min(1, math.Max(0, want))) > 1e-12 {
		t.Fatalf("score = %v, want clipped %v", got, want)
	}
}

const goodReply = "```json\n" + `{"overall_score": 0.72, "lead_quality": 0.6, "structure_score": 0.8,
"vocabulary_score": 0.75, "tone_score": 0.9, "attribution_score": 0.55,
"strengths": ["Direct lead"], "weaknesses": ["Thin attribution"],
"specific_feedback": "Name the source in paragraph two.",
"revision_priorities": ["Add attribution", "Cut adjectives"]}` + "\n```"

func TestRubricParsesAndRenders(t *testing.T) {
	client := &fixedLLM{reply: goodReply}
	a := NewRubric(client, nil).Assess(context.Background(), strings.Repeat("x", 5000), nil)
	if a.Degraded {
		t.Fatalf("unexpected degrade: %s", a.Feedback)
	}
	if a.Overall != 0.72 {
		t.Fatalf("overall = %v", a.Overall)
	}
	want := ComponentScores{LeadQuality: 0.6, Structure: 0.8, Vocabulary: 0.75, Tone: 0.9, Attribution: 0.55}
	if a.Components != want {
		t.Fatalf("components = %+v", a.Components)
	}
	for _, line := range []string{
		"OVERALL SCORE: 0.72/1.00",
		"  Lead Quality:    0.60/1.00",
		"  Structure:       0.80/1.00",
		"  Vocabulary:      0.75/1.00",
		"  Tone:            0.90/1.00",
		"  Attribution:     0.55/1.00",
		"  ✓ Direct lead",
		"  ✗ Thin attribution",
		"DETAILED FEEDBACK:\nName the source in paragraph two.",
		"  1. Add attribution\n  2. Cut adjectives",
	} {
		if !strings.Contains(a.Feedback, line) {
			t.Fatalf("feedback missing %q:\n%s", line, a.Feedback)
		}
	}

	parsed, ok := ParseComponentScores(a.Feedback)
	if !ok || parsed != want {
		t.Fatalf("ParseComponentScores = %+v, %v", parsed, ok)
	}

	if strings.Count(client.prompt.User, "x") > rubricArticleBudget+10 {
		t.Fatal("article text was not truncated")
	}
	if client.prompt.Temperature == nil || *client.prompt.Temperature != 0 {
		t.Fatal("rubric should request temperature 0")
	}
	if !strings.Contains(client.prompt.User, framework.GenericGuidance) {
		t.Fatal("nil framework should fall back to generic guidance")
	}
}

func TestRubricDegrades(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
		prefix string
	}{
		{name: "no credentials", client: nil, prefix: "no credentials available"},
		{name: "credentials error from client", client: &fixedLLM{err: llm.ErrNoCredentials}, prefix: "no credentials available"},
		{name: "unavailable client", client: llm.Unavailable{Err: llm.ErrNoCredentials}, prefix: "no credentials available"},
		{name: "not json", client: &fixedLLM{reply: "I think it is fine."}, prefix: "scoring failed: "},
		{name: "broken json", client: &fixedLLM{reply: `{"overall_score": "high"}`}, prefix: "scoring failed: "},
		{name: "call error", client: &fixedLLM{err: errors.New("timeout")}, prefix: "scoring failed: timeout"},
		{name: "panic", client: panicLLM{}, prefix: "scoring failed: panic: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, feedback := NewRubric(tt.client, nil).Score(context.Background(), longText, nil)
			if score != Neutral {
				t.Fatalf("score = %v", score)
			}
			if !strings.HasPrefix(feedback, tt.prefix) {
				t.Fatalf("feedback = %q, want prefix %q", feedback, tt.prefix)
			}
		})
	}
}

func TestRubricClampsAndDefaults(t *testing.T) {
	a := NewRubric(&fixedLLM{reply: `{"lead_quality": 1.4, "tone_score": -0.2}`}, nil).
		Assess(context.Background(), longText, nil)
	if a.Overall != Neutral {
		t.Fatalf("missing overall should default to neutral, got %v", a.Overall)
	}
	if a.Components.LeadQuality != 1 || a.Components.Tone != 0 {
		t.Fatalf("components not clamped: %+v", a.Components)
	}
	if !strings.Contains(a.Feedback, "No specific feedback") {
		t.Fatal("missing detail placeholder")
	}
}

func TestParseComponentScoresPartial(t *testing.T) {
	c, ok := ParseComponentScores("lead quality: 0.40/1.00\nTone:   0.7/1.00")
	if ok {
		t.Fatal("partial report should not be ok")
	}
	if c.LeadQuality != 0.4 || c.Tone != 0.7 {
		t.Fatalf("parsed = %+v", c)
	}
}

func TestCombinedWithRealScorersDegradesGracefully(t *testing.T) {
	stat := NewStatistical(filepath.Join(t.TempDir(), "absent.npz"), nil, nil)
	c, err := NewCombined(stat, NewRubric(nil, nil), nil, DefaultWeights(), nil)
	if err != nil {
		t.Fatal(err)
	}
	v := c.ScoreWithVerdict(context.Background(), longText, DefaultThreshold)
	if math.Abs(v.Score-0.5) > 1e-9 || v.Passes {
		t.Fatalf("verdict = %+v", v)
	}
	if !strings.Contains(v.Feedback, "no credentials available") {
		t.Fatalf("feedback = %q", v.Feedback)
	}
}
