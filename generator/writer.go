package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newsroom_writer/framework"
	"newsroom_writer/scoring"
)

// Scorer is satisfied by *scoring.Combined.
type Scorer interface {
	ScoreWithVerdict(ctx context.Context, text string, threshold float64) scoring.Verdict
}

// WriterConfig bounds the loop.
type WriterConfig struct {
	MaxIterations  int     `yaml:"max_iterations"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// DefaultWriterConfig: 5 rounds, threshold 0.80.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{MaxIterations: 5, ScoreThreshold: scoring.DefaultThreshold}
}

func (c WriterConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0, 1], got %.3f", c.ScoreThreshold)
	}
	return nil
}

// IterativeWriter drafts, scores and refines an article until it passes or
// the round budget is spent. Safe for concurrent Invoke calls: all loop state
// lives in a per-call Session.
type IterativeWriter struct {
	agent     *Agent
	scorer    Scorer
	fwContext string
	cfg       WriterConfig
	logger    *slog.Logger
}

// NewIterativeWriter renders the framework context once; fw may be nil.
func NewIterativeWriter(agent *Agent, scorer Scorer, fw *framework.Framework, cfg WriterConfig, logger *slog.Logger) (*IterativeWriter, error) {
	if agent == nil || scorer == nil {
		return nil, errors.New("agent and scorer are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IterativeWriter{
		agent:     agent,
		scorer:    scorer,
		fwContext: fw.WriterContext(),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Invoke runs the loop. Language-model errors abort the run and are returned
// as is; a low score never does.
func (w *IterativeWriter) Invoke(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if strings.TrimSpace(req.SourceContent) == "" {
		return WriteResult{}, ErrNoSourceContent
	}
	sess := newSession(req)
	log := w.logger.With("max_iterations", w.cfg.MaxIterations, "threshold", w.cfg.ScoreThreshold)

	for !sess.State().Terminal() {
		iteration := sess.Iteration()
		var (
			article string
			err     error
		)
		switch sess.State() {
		case StateDrafting:
			log.Info("writing initial draft", "iteration", iteration)
			article, err = w.agent.Draft(ctx, w.fwContext, req)
		case StateRefining:
			log.Info("refining article", "iteration", iteration)
			article, err = w.agent.Refine(ctx, w.fwContext, req, sess.Article, sess.Feedback)
		}
		if err != nil {
			return WriteResult{}, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		sess.drafted(article)

		v := w.scorer.ScoreWithVerdict(ctx, article, w.cfg.ScoreThreshold)
		rec := sess.record(v.Score, v.Feedback, v.Passes, w.cfg.MaxIterations)
		log.Info(v.Message, "iteration", rec.Iteration, "score", rec.Score, "passes", rec.Passes, "chars", len(article))
		log.Debug("style feedback", "iteration", rec.Iteration, "feedback", rec.Feedback)
	}

	if sess.State() == StateAccepted {
		last := sess.History[len(sess.History)-1]
		log.Info("article accepted", "iterations", last.Iteration, "score", last.Score)
		return WriteResult{
			FinalArticle: last.Article,
			Score:        last.Score,
			Iterations:   last.Iteration,
			History:      sess.History,
			Success:      true,
		}, nil
	}

	best, _ := sess.Best()
	log.Warn("iteration budget exhausted", "best_score", best.Score, "best_iteration", best.Iteration)
	return WriteResult{
		FinalArticle: best.Article,
		Score:        best.Score,
		Iterations:   w.cfg.MaxIterations,
		History:      sess.History,
		Success:      false,
		Message:      fmt.Sprintf("Did not meet threshold after %d iterations. Returning best attempt.", w.cfg.MaxIterations),
	}, nil
}
