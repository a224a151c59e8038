package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"newsroom_writer/config"
	"newsroom_writer/dataset"
	"newsroom_writer/framework"
	"newsroom_writer/generator"
	"newsroom_writer/journal"
	"newsroom_writer/llm"
	"newsroom_writer/pipeline"
	"newsroom_writer/publisher"
	"newsroom_writer/scoring"
	"newsroom_writer/server"
	"newsroom_writer/source"
)

func main() {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	app := &cli.App{
		Name:  "newsroom",
		Usage: "write, score and publish house-style news articles",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: config.DefaultPath, Usage: "path to config.yaml"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logs"},
		},
		Commands: []*cli.Command{
			{
				Name:  "write",
				Usage: "run the full workflow for a source url or a pre-written article",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "source article url"},
					&cli.StringFlag{Name: "file", Usage: "pre-written article or source text file"},
					&cli.StringFlag{Name: "prompt", Usage: "writing instruction"},
					&cli.StringFlag{Name: "plan", Usage: "comma separated stages (default depends on input)"},
				},
				Action: writeAction,
			},
			{
				Name:      "rewrite",
				Usage:     "research and rewrite an article without publishing",
				ArgsUsage: "<url>",
				Action:    rewriteAction,
			},
			{
				Name:  "score",
				Usage: "score an article read from a file or stdin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "article file (default stdin)"},
					&cli.Float64Flag{Name: "threshold", Usage: "acceptance threshold (default writer.score_threshold)"},
					&cli.BoolFlag{Name: "json", Usage: "print the verdict as JSON"},
				},
				Action: scoreAction,
			},
			{
				Name:  "dataset",
				Usage: "collect house articles from the feeds and write the training data",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "maximum number of articles (default from config)"},
				},
				Action: datasetAction,
			},
			{
				Name:   "train",
				Usage:  "train the statistical model on the saved training data",
				Action: trainAction,
			},
			{
				Name:  "serve",
				Usage: "start the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address (overrides config)"},
				},
				Action: serveAction,
			},
			{
				Name:      "runs",
				Usage:     "list recent runs, or show one by id",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: runsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env 汇集各命令共用的配置与依赖。
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	return &env{cfg: cfg, logger: cfg.NewLogger()}, nil
}

// client returns llm.Unavailable when no API key is configured; rubric
// scoring then reports "no credentials available" with a neutral score.
func (e *env) client() (llm.Client, error) {
	client, err := llm.New(e.cfg.LLM)
	if errors.Is(err, llm.ErrNoCredentials) {
		e.logger.Warn("language model unavailable", "err", err)
		return llm.Unavailable{Err: llm.ErrNoCredentials}, nil
	}
	return client, err
}

func (e *env) scorer(client llm.Client, fw *framework.Framework) (*scoring.Combined, error) {
	stat := scoring.NewStatistical(e.cfg.Paths.Weights, e.cfg.Model.Hidden, e.logger)
	rubric := scoring.NewRubric(client, e.logger)
	return scoring.NewCombined(stat, rubric, fw, e.cfg.Weights, e.logger)
}

// orchestrator wires every stage. Callers close the returned journal.
func (e *env) orchestrator() (*pipeline.Orchestrator, *scoring.Combined, *journal.Journal, error) {
	client, err := e.client()
	if err != nil {
		return nil, nil, nil, err
	}
	fw := framework.LoadOptional(e.cfg.Paths.Framework, e.logger)
	scorer, err := e.scorer(client, fw)
	if err != nil {
		return nil, nil, nil, err
	}
	agent, err := generator.NewAgent(client)
	if err != nil {
		return nil, nil, nil, err
	}
	writer, err := generator.NewIterativeWriter(agent, scorer, fw, e.cfg.Writer, e.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	pub, err := publisher.New(e.cfg.CMS, nil, e.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	runs, err := journal.Open(e.cfg.Paths.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	scraper := source.NewScraper(nil, source.NewDetector(), e.logger)

	orch := pipeline.NewOrchestrator(e.logger,
		pipeline.ResearchStage{Fetcher: scraper},
		pipeline.SummarizeStage{Editor: agent},
		pipeline.WriteStage{Writer: writer, Recorder: runs, Logger: e.logger},
		pipeline.ScoreStage{Scorer: scorer, Threshold: e.cfg.Writer.ScoreThreshold},
		pipeline.EditStage{Editor: agent, Options: e.cfg.Options()},
		pipeline.PublishStage{Poster: pub},
	)
	return orch, scorer, runs, nil
}

func writeAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	job := pipeline.Job{SourceURL: c.String("url"), UserPrompt: c.String("prompt")}
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		job.SourceContent = string(data)
	}
	if job.SourceURL == "" && job.SourceContent == "" {
		return errors.New("--url or --file is required")
	}
	plan := pipeline.DefaultPlan(job)
	if s := c.String("plan"); s != "" {
		if plan, err = pipeline.ParsePlan(s); err != nil {
			return err
		}
	}

	orch, _, runs, err := e.orchestrator()
	if err != nil {
		return err
	}
	defer runs.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	out, err := orch.Run(ctx, plan, job)
	if err != nil {
		return err
	}

	if out.Write != nil {
		fmt.Fprintf(os.Stderr, "score %.3f after %d iteration(s), success=%v\n", out.Write.Score, out.Write.Iterations, out.Write.Success)
		if out.Write.Message != "" {
			fmt.Fprintln(os.Stderr, out.Write.Message)
		}
	}
	if out.Verdict != nil {
		fmt.Fprintln(os.Stderr, out.Verdict.Message)
	}
	if out.Receipt != nil {
		fmt.Fprintf(os.Stderr, "published id=%s %s%s\n", out.Receipt.ID, out.Receipt.URL, out.Receipt.Outbox)
	}
	if out.RunID != "" {
		fmt.Fprintf(os.Stderr, "run %s\n", out.RunID)
	}
	fmt.Println(out.Article)
	return nil
}

func rewriteAction(c *cli.Context) error {
	url := c.Args().First()
	if url == "" {
		return errors.New("usage: rewrite <url>")
	}
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	orch, _, runs, err := e.orchestrator()
	if err != nil {
		return err
	}
	defer runs.Close()

	summary, err := orch.Rewrite(c.Context, url)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func scoreAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	threshold, err := resolveThreshold(c.IsSet("threshold"), c.Float64("threshold"), e.cfg.Writer.ScoreThreshold)
	if err != nil {
		return err
	}

	client, err := e.client()
	if err != nil {
		return err
	}
	scorer, err := e.scorer(client, framework.LoadOptional(e.cfg.Paths.Framework, e.logger))
	if err != nil {
		return err
	}
	v := scorer.ScoreWithVerdict(c.Context, string(text), threshold)
	if c.Bool("json") {
		return printJSON(v)
	}
	fmt.Println(v.Feedback)
	fmt.Println(v.Message)
	return nil
}

// resolveThreshold 未指定时沿用配置值。
func resolveThreshold(set bool, flag, configured float64) (float64, error) {
	threshold := configured
	if set {
		threshold = flag
	}
	if threshold < 0 || threshold > 1 {
		return 0, fmt.Errorf("threshold must be in [0, 1], got %v", threshold)
	}
	return threshold, nil
}

func datasetAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	limit := e.cfg.Dataset.Limit
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}
	collector := dataset.NewCollector(e.cfg.Dataset.Feeds, e.cfg.Dataset.MinChars, nil, e.logger)
	articles := collector.Collect(c.Context)
	x, y, err := dataset.Build(articles, limit)
	if err != nil {
		return err
	}
	if err := dataset.Save(e.cfg.Paths.TrainX, e.cfg.Paths.TrainY, x, y); err != nil {
		return err
	}
	rows, _ := x.Dims()
	e.logger.Info("dataset saved", "samples", rows, "x", e.cfg.Paths.TrainX, "y", e.cfg.Paths.TrainY)
	return nil
}

func trainAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	x, y, err := dataset.Load(e.cfg.Paths.TrainX, e.cfg.Paths.TrainY)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot train: training data missing, run the dataset command first: %w", err)
		}
		return fmt.Errorf("cannot train: %w", err)
	}
	losses, err := dataset.TrainAndSave(x, y, e.cfg.Model.TrainOptions(), e.cfg.Paths.Weights, e.logger)
	if err != nil {
		return err
	}
	e.logger.Info("model trained", "final_loss", losses[len(losses)-1], "weights", e.cfg.Paths.Weights)
	return nil
}

func serveAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	orch, scorer, runs, err := e.orchestrator()
	if err != nil {
		return err
	}
	defer runs.Close()

	srv, err := server.New(scorer, e.cfg.Writer.ScoreThreshold, orch, runs, e.logger)
	if err != nil {
		return err
	}
	listen := e.cfg.Server.Addr
	if addr := c.String("addr"); addr != "" {
		listen = addr
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("starting web server", "addr", listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	srv.Wait()
	return nil
}

func runsAction(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	runs, err := journal.Open(e.cfg.Paths.Database)
	if err != nil {
		return err
	}
	defer runs.Close()

	if id := c.Args().First(); id != "" {
		run, err := runs.Get(c.Context, id)
		if err != nil {
			return err
		}
		return printJSON(run)
	}
	list, err := runs.Recent(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range list {
		status := "revise"
		if r.Result.Success {
			status = "accept"
		}
		fmt.Printf("%s  %s  %.3f  %d  %-6s  %s\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Result.Score, r.Result.Iterations, status, strings.TrimSpace(r.SourceRef))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
