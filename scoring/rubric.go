package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newsroom_writer/framework"
	"newsroom_writer/llm"
)

// rubricArticleBudget caps how much article text is sent for grading.
const rubricArticleBudget = 3000

const rubricSystem = "You are a senior editor at IntelliNews with 20 years of experience. You have high standards."

const rubricTemplate = `You are an expert editor for IntelliNews. Score this article against our house style.

INTELLINEWS STYLE FRAMEWORK:
%s

CRITICAL: The opening sentence MUST be punchy, direct, and to-the-point.
BAD openings: "In a recent development...", "According to reports...", "It has been announced..."
GOOD openings: "Russia raised interest rates to 21%%.", "Ukraine signed a €2.5bn defence deal."

ARTICLE TO SCORE:
---
%s
---

Respond with a single JSON object:
{
  "overall_score": 0.0-1.0,
  "lead_quality": 0.0-1.0,
  "structure_score": 0.0-1.0,
  "vocabulary_score": 0.0-1.0,
  "tone_score": 0.0-1.0,
  "attribution_score": 0.0-1.0,
  "strengths": ["strength 1", "strength 2"],
  "weaknesses": ["weakness 1", "weakness 2"],
  "specific_feedback": "Detailed feedback paragraph",
  "revision_priorities": ["priority 1", "priority 2", "priority 3"]
}

SCORING CRITERIA:
- lead_quality: Is the first sentence punchy and direct? Does it immediately convey the key news?
- structure_score: Is the article well organised with a clear flow?
- vocabulary_score: Appropriate word choice, avoids forbidden words?
- tone_score: Professional, objective journalism?
- attribution_score: Proper source citations throughout?

Be honest and critical. A score of 0.9+ should be rare and exceptional.
If the opening sentence is weak or generic, lead_quality should be 0.6 or lower.`

// rubricReply mirrors the JSON the model is asked for.
type rubricReply struct {
	Overall     *float64 `json:"overall_score"`
	Lead        float64  `json:"lead_quality"`
	Structure   float64  `json:"structure_score"`
	Vocabulary  float64  `json:"vocabulary_score"`
	Tone        float64  `json:"tone_score"`
	Attribution float64  `json:"attribution_score"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Feedback    string   `json:"specific_feedback"`
	Priorities  []string `json:"revision_priorities"`
}

// Rubric grades text with the language model. A nil client means no
// credentials were configured.
type Rubric struct {
	client llm.Client
	logger *slog.Logger
}

func NewRubric(client llm.Client, logger *slog.Logger) *Rubric {
	return &Rubric{client: client, logger: orDiscard(logger)}
}

// Score returns the overall rubric score and the rendered feedback report.
func (r *Rubric) Score(ctx context.Context, text string, fw *framework.Framework) (float64, string) {
	a := r.Assess(ctx, text, fw)
	return a.Overall, a.Feedback
}

// Assess grades text. It never fails: missing credentials, call errors and
// unparseable replies all yield a Neutral, Degraded assessment.
func (r *Rubric) Assess(ctx context.Context, text string, fw *framework.Framework) Assessment {
	return attempt(r.logger, "rubric", degraded, func() (Assessment, error) {
		if r.client == nil {
			return Assessment{}, llm.ErrNoCredentials
		}
		raw, err := r.client.Complete(ctx, llm.Prompt{
			System:      rubricSystem,
			User:        fmt.Sprintf(rubricTemplate, fw.RubricSummary(), llm.Truncate(text, rubricArticleBudget)),
			Temperature: llm.Float(0),
		})
		if err != nil {
			return Assessment{}, err
		}
		return parseRubric(raw)
	})
}

func degraded(err error) Assessment {
	msg := "scoring failed: " + err.Error()
	if errors.Is(err, llm.ErrNoCredentials) {
		msg = llm.ErrNoCredentials.Error()
	}
	return Assessment{Overall: Neutral, Feedback: msg, Degraded: true}
}

func parseRubric(raw string) (Assessment, error) {
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return Assessment{}, fmt.Errorf("no JSON object in reply: %q", llm.Truncate(strings.TrimSpace(raw), 80))
	}
	var rep rubricReply
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return Assessment{}, fmt.Errorf("decode rubric reply: %w", err)
	}

	overall := Neutral
	if rep.Overall != nil {
		overall = *rep.Overall
	}
	if !finite(overall) {
		return Assessment{}, fmt.Errorf("overall score %v is not finite", overall)
	}
	detail := rep.Feedback
	if detail == "" {
		detail = "No specific feedback"
	}
	a := Assessment{
		Overall: clamp01(overall),
		Components: ComponentScores{
			LeadQuality: clamp01(rep.Lead),
			Structure:   clamp01(rep.Structure),
			Vocabulary:  clamp01(rep.Vocabulary),
			Tone:        clamp01(rep.Tone),
			Attribution: clamp01(rep.Attribution),
		},
		Strengths:  rep.Strengths,
		Weaknesses: rep.Weaknesses,
		Detail:     detail,
		Priorities: rep.Priorities,
	}
	a.Feedback = a.Render()
	return a, nil
}
