package pipeline

import (
	"context"
	"errors"
	"strings"

	"newsroom_writer/scoring"
)

const rewritePrompt = "Write a news article based on this content"

// 评分报告的段落标题；模型偶尔把它们混进正文。
var feedbackMarkers = []string{
	"OVERALL SCORE:",
	"COMPONENT SCORES:",
	"STRENGTHS:",
	"WEAKNESSES:",
	"DETAILED FEEDBACK:",
	"REVISION PRIORITIES:",
}

// RewriteSummary is the result of a research + write run without publishing.
type RewriteSummary struct {
	Article         string                  `json:"article"`
	Score           float64                 `json:"score"`
	ComponentScores scoring.ComponentScores `json:"component_scores"`
	Feedback        string                  `json:"feedback"`
	Iterations      int                     `json:"iterations"`
	Success         bool                    `json:"success"`
	RunID           string                  `json:"run_id,omitempty"`
}

// Rewrite researches url and writes an article from it. Success reports
// whether the run completed, not whether the score met the threshold.
func (o *Orchestrator) Rewrite(ctx context.Context, url string) (RewriteSummary, error) {
	if strings.TrimSpace(url) == "" {
		return RewriteSummary{}, errors.New("no source url provided")
	}
	job, err := o.Run(ctx, rewritePlan, Job{SourceURL: url, UserPrompt: rewritePrompt})
	if err != nil {
		return RewriteSummary{}, err
	}
	res := job.Write
	if res == nil {
		return RewriteSummary{}, errors.New("write stage produced no result")
	}

	feedback := res.LastFeedback()
	components, ok := scoring.ParseComponentScores(feedback)
	if !ok {
		o.logger.Debug("feedback has incomplete component scores")
	}
	return RewriteSummary{
		Article:         CleanArticle(res.FinalArticle, url),
		Score:           res.Score,
		ComponentScores: components,
		Feedback:        feedback,
		Iterations:      res.Iterations,
		Success:         true,
		RunID:           job.RunID,
	}, nil
}

// CleanArticle drops the headline line and any stray report lines, then
// appends the source attribution.
func CleanArticle(article, url string) string {
	article = strings.TrimSpace(article)
	if article == "" {
		return ""
	}
	lines := strings.Split(article, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	kept := lines[:0]
	for _, line := range lines {
		if !isFeedbackLine(line) {
			kept = append(kept, line)
		}
	}
	body := strings.TrimSpace(strings.Join(kept, "\n"))
	return body + "\n\nSource: " + url
}

func isFeedbackLine(line string) bool {
	for _, m := range feedbackMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
