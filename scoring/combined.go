package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"newsroom_writer/framework"
)

const (
	// DefaultThreshold is the combined score an article needs to pass.
	DefaultThreshold = 0.80
	// MinWords is the shortest text that is scored at all.
	MinWords = 10
	// ShortTextScore is returned for text under MinWords.
	ShortTextScore = 0.1

	shortTextFeedback = "The article is too short to be scored. Please provide more content."
)

// StatisticalScorer is satisfied by *Statistical.
type StatisticalScorer interface {
	Score(text string) float64
}

// RubricScorer is satisfied by *Rubric.
type RubricScorer interface {
	Assess(ctx context.Context, text string, fw *framework.Framework) Assessment
}

// Weights blends the two sub-scores; they must sum to 1.
type Weights struct {
	Statistical float64 `yaml:"statistical" json:"statistical"`
	Rubric      float64 `yaml:"rubric" json:"rubric"`
}

// DefaultWeights favours the rubric, which discriminates better.
func DefaultWeights() Weights {
	return Weights{Statistical: 0.3, Rubric: 0.7}
}

func (w Weights) Validate() error {
	if w.Statistical < 0 || w.Rubric < 0 {
		return errors.New("score weights must be non-negative")
	}
	if math.Abs(w.Statistical+w.Rubric-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1, got %.3f", w.Statistical+w.Rubric)
	}
	return nil
}

// Verdict is the result of one combined scoring call.
type Verdict struct {
	Score       float64         `json:"score"`
	Feedback    string          `json:"feedback"`
	Passes      bool            `json:"passes"`
	Threshold   float64         `json:"threshold"`
	Message     string          `json:"message"`
	Statistical float64         `json:"statistical"`
	Rubric      float64         `json:"rubric"`
	Components  ComponentScores `json:"components"`
}

// Combined fuses the statistical and rubric scores.
type Combined struct {
	stat    StatisticalScorer
	rubric  RubricScorer
	fw      *framework.Framework
	weights Weights
	logger  *slog.Logger
}

// NewCombined wires the two scorers. fw may be nil.
func NewCombined(stat StatisticalScorer, rubric RubricScorer, fw *framework.Framework, weights Weights, logger *slog.Logger) (*Combined, error) {
	if stat == nil || rubric == nil {
		return nil, errors.New("statistical and rubric scorers are required")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Combined{stat: stat, rubric: rubric, fw: fw, weights: weights, logger: orDiscard(logger)}, nil
}

// ScoreWithVerdict grades text and compares the result with threshold.
func (c *Combined) ScoreWithVerdict(ctx context.Context, text string, threshold float64) Verdict {
	if len(strings.Fields(text)) < MinWords {
		c.logger.Info("text too short to score", "words", len(strings.Fields(text)))
		return Verdict{
			Score:     ShortTextScore,
			Feedback:  shortTextFeedback,
			Passes:    false,
			Threshold: threshold,
			Message:   verdictMessage(ShortTextScore, threshold, false),
		}
	}

	stat := c.stat.Score(text)
	if !finite(stat) {
		c.logger.Warn("statistical score not finite, using neutral", "value", stat)
		stat = Neutral
	}
	assessment := c.rubric.Assess(ctx, text, c.fw)
	rub := assessment.Overall
	if !finite(rub) {
		c.logger.Warn("rubric score not finite, using neutral", "value", rub)
		rub = Neutral
	}

	score := clamp01(c.weights.Statistical*stat + c.weights.Rubric*rub)
	passes := score >= threshold
	c.logger.Info("scored article", "score", score, "statistical", stat, "rubric", rub, "passes", passes)

	return Verdict{
		Score:       score,
		Feedback:    c.report(score, stat, rub, assessment.Feedback),
		Passes:      passes,
		Threshold:   threshold,
		Message:     verdictMessage(score, threshold, passes),
		Statistical: stat,
		Rubric:      rub,
		Components:  assessment.Components,
	}
}

func (c *Combined) report(score, stat, rub float64, rubricFeedback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "COMBINED SCORE: %.3f/1.00\n", score)
	fmt.Fprintf(&sb, "  - Statistical Score: %.3f (%.0f%% weight)\n", stat, c.weights.Statistical*100)
	fmt.Fprintf(&sb, "  - LLM Score:         %.3f (%.0f%% weight)\n\n", rub, c.weights.Rubric*100)
	sb.WriteString(rubricFeedback)
	return sb.String()
}

func verdictMessage(score, threshold float64, passes bool) string {
	if passes {
		return fmt.Sprintf("ACCEPTED - Score %.3f meets threshold %.3f", score, threshold)
	}
	return fmt.Sprintf("NEEDS REVISION - Score %.3f below threshold %.3f", score, threshold)
}
