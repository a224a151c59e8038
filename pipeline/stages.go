package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"newsroom_writer/generator"
	"newsroom_writer/publisher"
	"newsroom_writer/scoring"
	"newsroom_writer/source"
)

// Fetcher is satisfied by *source.Scraper.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (source.Document, error)
}

// Writer is satisfied by *generator.IterativeWriter.
type Writer interface {
	Invoke(ctx context.Context, req generator.WriteRequest) (generator.WriteResult, error)
}

// Recorder is satisfied by *journal.Journal.
type Recorder interface {
	Record(ctx context.Context, sourceRef string, res generator.WriteResult) (string, error)
}

// Editor is satisfied by *generator.Agent.
type Editor interface {
	Summarize(ctx context.Context, text string) (string, error)
	Reflect(ctx context.Context, draft, source string) (string, error)
	ReviseFromCritique(ctx context.Context, draft, critique string) (string, error)
	Metadata(ctx context.Context, article string, opts generator.Options) (generator.Metadata, error)
}

// Poster is satisfied by *publisher.Publisher.
type Poster interface {
	Publish(ctx context.Context, post publisher.Post) (publisher.Receipt, error)
}

// #region research
type ResearchStage struct {
	Fetcher Fetcher
}

func (ResearchStage) Kind() StageKind { return StageResearch }

func (s ResearchStage) Process(ctx context.Context, job Job) (Job, error) {
	if job.SourceURL == "" {
		if strings.TrimSpace(job.SourceContent) == "" {
			return job, errors.New("no source url or content")
		}
		return job, nil
	}
	doc, err := s.Fetcher.Fetch(ctx, job.SourceURL)
	if err != nil {
		return job, err
	}
	job.Source = &doc
	job.SourceContent = doc.Content
	return job, nil
}

// #endregion research

// #region summarize
type SummarizeStage struct {
	Editor Editor
}

func (SummarizeStage) Kind() StageKind { return StageSummarize }

func (s SummarizeStage) Process(ctx context.Context, job Job) (Job, error) {
	summary, err := s.Editor.Summarize(ctx, job.SourceContent)
	if err != nil {
		return job, err
	}
	job.Summary = summary
	return job, nil
}

// #endregion summarize

// #region write
// WriteStage runs the iterative writer and journals the result when a
// Recorder is set. A summary, when present, replaces the raw source.
type WriteStage struct {
	Writer   Writer
	Recorder Recorder
	Logger   *slog.Logger
}

func (WriteStage) Kind() StageKind { return StageWrite }

func (s WriteStage) Process(ctx context.Context, job Job) (Job, error) {
	req := generator.WriteRequest{SourceContent: job.SourceContent, UserPrompt: job.UserPrompt}
	if job.Summary != "" {
		req.SourceContent = job.Summary
	}
	if job.Source != nil {
		req.SourceLanguage = job.Source.Language
	}
	res, err := s.Writer.Invoke(ctx, req)
	if err != nil {
		return job, err
	}
	job.Write = &res
	job.Article = res.FinalArticle

	if s.Recorder != nil {
		id, err := s.Recorder.Record(ctx, job.SourceURL, res)
		if err != nil {
			// 记录失败不影响成稿
			logger(s.Logger).Warn("journal record failed", "err", err)
		} else {
			job.RunID = id
		}
	}
	return job, nil
}

// #endregion write

// #region score
type ScoreStage struct {
	Scorer    generator.Scorer
	Threshold float64
}

func (ScoreStage) Kind() StageKind { return StageScore }

func (s ScoreStage) Process(ctx context.Context, job Job) (Job, error) {
	if job.Article == "" {
		job.Article = job.SourceContent
	}
	v := s.Scorer.ScoreWithVerdict(ctx, job.Article, s.Threshold)
	job.Verdict = &v
	return job, nil
}

// #endregion score

// #region edit
// EditStage critiques and revises a fresh draft, then generates metadata.
// Pre-written articles and drafts the writer already accepted go straight
// to metadata.
type EditStage struct {
	Editor  Editor
	Options generator.Options
}

func (EditStage) Kind() StageKind { return StageEdit }

func (s EditStage) Process(ctx context.Context, job Job) (Job, error) {
	article := job.Article
	if article == "" {
		article = job.SourceContent
	}
	if strings.TrimSpace(article) == "" {
		return job, errors.New("nothing to edit")
	}

	accepted := job.Write != nil && job.Write.Success
	if !job.Prewritten() && !accepted {
		critique, err := s.Editor.Reflect(ctx, article, job.SourceContent)
		if err != nil {
			return job, err
		}
		revised, err := s.Editor.ReviseFromCritique(ctx, article, critique)
		if err != nil {
			return job, err
		}
		job.Critique = critique
		article = revised
	}

	md, err := s.Editor.Metadata(ctx, article, s.Options)
	if err != nil {
		return job, err
	}
	job.Article = article
	job.Metadata = &md
	return job, nil
}

// #endregion edit

// #region publish
type PublishStage struct {
	Poster Poster
}

func (PublishStage) Kind() StageKind { return StagePublish }

func (s PublishStage) Process(ctx context.Context, job Job) (Job, error) {
	if job.Metadata == nil {
		return job, errors.New("publish requires metadata; run the edit stage first")
	}
	md := job.Metadata
	post := publisher.Post{
		Title:        md.Title,
		Summary:      md.Abstract,
		Body:         job.Article,
		Countries:    md.Countries,
		Publications: md.Publications,
		Industries:   md.Industries,
	}
	if post.Summary == "" {
		post.Summary = md.SEODescription
	}
	if post.Title == "" {
		post.Title = firstLine(job.Article)
	}
	receipt, err := s.Poster.Publish(ctx, post)
	if err != nil {
		return job, err
	}
	job.Receipt = &receipt
	return job, nil
}

// #endregion publish

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

var _ generator.Scorer = (*scoring.Combined)(nil)
