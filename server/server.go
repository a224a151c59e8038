package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsroom_writer/generator"
	"newsroom_writer/journal"
	"newsroom_writer/pipeline"
)

const (
	scoreTimeout    = 2 * time.Minute
	workflowTimeout = 15 * time.Minute
	maxBodyBytes    = 4 << 20
	// 已结束的任务保留时长与数量上限
	taskTTL  = time.Hour
	maxTasks = 1000
)

// Workflows is satisfied by *pipeline.Orchestrator.
type Workflows interface {
	Run(ctx context.Context, plan pipeline.Plan, job pipeline.Job) (pipeline.Job, error)
	Rewrite(ctx context.Context, url string) (pipeline.RewriteSummary, error)
}

// Runs is satisfied by *journal.Journal.
type Runs interface {
	Get(ctx context.Context, id string) (journal.Run, error)
	Recent(ctx context.Context, limit int) ([]journal.Run, error)
}

type Server struct {
	scorer    generator.Scorer
	threshold float64
	flows     Workflows
	runs      Runs
	tasks     *taskStore
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// #region task-store
type taskStatus string

const (
	taskRunning taskStatus = "running"
	taskDone    taskStatus = "done"
	taskFailed  taskStatus = "failed"
)

// task 是后台执行的一次工作流。
type task struct {
	ID        string     `json:"id"`
	Plan      string     `json:"plan"`
	Status    taskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Article   string     `json:"article,omitempty"`
	Score     float64    `json:"score,omitempty"`
	RunID     string     `json:"run_id,omitempty"`
	Receipt   any        `json:"receipt,omitempty"`
	Metadata  any        `json:"metadata,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type taskStore struct {
	mu    sync.Mutex
	tasks map[string]*task
	ttl   time.Duration
	limit int
	now   func() time.Time
}

func newStore(ttl time.Duration, limit int) *taskStore {
	return &taskStore{
		tasks: make(map[string]*task),
		ttl:   ttl,
		limit: limit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *taskStore) set(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.tasks[t.ID] = t
}

// prune drops finished tasks older than ttl, then the oldest finished ones
// until there is room for one more. Running tasks are never dropped.
func (s *taskStore) prune() {
	cutoff := s.now().Add(-s.ttl)
	var finished []*task
	for id, t := range s.tasks {
		if t.EndedAt == nil {
			continue
		}
		if t.EndedAt.Before(cutoff) {
			delete(s.tasks, id)
			continue
		}
		finished = append(finished, t)
	}
	over := len(s.tasks) - s.limit + 1
	if over <= 0 {
		return
	}
	slices.SortFunc(finished, func(a, b *task) int { return a.EndedAt.Compare(*b.EndedAt) })
	for _, t := range finished[:min(over, len(finished))] {
		delete(s.tasks, t.ID)
	}
}

// get returns a copy so callers never race with the worker.
func (s *taskStore) get(id string) (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task{}, false
	}
	return *t, true
}

func (s *taskStore) update(id string, fn func(*task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		fn(t)
	}
}

// #endregion task-store

// New wires the API. runs may be nil, which disables the run endpoints.
func New(scorer generator.Scorer, threshold float64, flows Workflows, runs Runs, logger *slog.Logger) (*Server, error) {
	if scorer == nil || flows == nil {
		return nil, errors.New("scorer and workflows are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		scorer:    scorer,
		threshold: threshold,
		flows:     flows,
		runs:      runs,
		tasks:     newStore(taskTTL, maxTasks),
		logger:    logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/score", s.handleScore)
	mux.HandleFunc("POST /api/rewrite", s.handleRewrite)
	mux.HandleFunc("POST /api/invoke", s.handleInvoke)
	mux.HandleFunc("GET /api/invoke/{id}", s.handleTask)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logMiddleware(mux)
}

// Wait blocks until background workflows finish.
func (s *Server) Wait() { s.wg.Wait() }

// --- Handlers ---

type scoreReq struct {
	Text      string   `json:"text"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type rewriteReq struct {
	URL string `json:"url"`
}

type invokeReq struct {
	SourceURL     string `json:"source_url"`
	SourceContent string `json:"source_content"`
	UserPrompt    string `json:"user_prompt"`
	Plan          string `json:"plan"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreReq
	if !decode(w, r, &req) {
		return
	}
	threshold := s.threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		writeError(w, http.StatusBadRequest, "threshold must be in [0, 1]")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), scoreTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, s.scorer.ScoreWithVerdict(ctx, req.Text, threshold))
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewriteReq
	if !decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()
	summary, err := s.flows.Rewrite(ctx, req.URL)
	if err != nil {
		s.logger.Error("rewrite failed", "url", req.URL, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleInvoke starts a workflow in the background and returns its task id.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeReq
	if !decode(w, r, &req) {
		return
	}
	job := pipeline.Job{SourceURL: req.SourceURL, SourceContent: req.SourceContent, UserPrompt: req.UserPrompt}
	if job.SourceURL == "" && job.SourceContent == "" {
		writeError(w, http.StatusBadRequest, "source_url or source_content is required")
		return
	}
	plan := pipeline.DefaultPlan(job)
	if req.Plan != "" {
		var err error
		if plan, err = pipeline.ParsePlan(req.Plan); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	t := &task{ID: uuid.New().String(), Plan: plan.String(), Status: taskRunning, StartedAt: time.Now().UTC()}
	s.tasks.set(t)
	s.wg.Add(1)
	go s.runTask(context.WithoutCancel(r.Context()), t.ID, plan, job)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": t.ID, "status": string(taskRunning)})
}

func (s *Server) runTask(parent context.Context, id string, plan pipeline.Plan, job pipeline.Job) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(parent, workflowTimeout)
	defer cancel()

	out, err := s.flows.Run(ctx, plan, job)
	now := time.Now().UTC()
	s.tasks.update(id, func(t *task) {
		t.EndedAt = &now
		if err != nil {
			t.Status, t.Error = taskFailed, err.Error()
			return
		}
		t.Status = taskDone
		t.Article, t.RunID = out.Article, out.RunID
		switch {
		case out.Write != nil:
			t.Score = out.Write.Score
		case out.Verdict != nil:
			t.Score = out.Verdict.Score
		}
		if out.Receipt != nil {
			t.Receipt = out.Receipt
		}
		if out.Metadata != nil {
			t.Metadata = out.Metadata
		}
	})
	if err != nil {
		s.logger.Error("workflow failed", "task", id, "err", err)
		return
	}
	s.logger.Info("workflow finished", "task", id)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run journal disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run journal disabled")
		return
	}
	run, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, journal.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
