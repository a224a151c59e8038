// Package pipeline runs an article job through an ordered list of stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newsroom_writer/generator"
	"newsroom_writer/publisher"
	"newsroom_writer/scoring"
	"newsroom_writer/source"
)

// ErrUnknownStage is returned for a plan step with no registered stage.
var ErrUnknownStage = errors.New("unknown stage")

// StageKind names a pipeline step.
type StageKind string

const (
	StageResearch  StageKind = "research"
	StageSummarize StageKind = "summarize"
	StageWrite     StageKind = "write"
	StageScore     StageKind = "score"
	StageEdit      StageKind = "edit"
	StagePublish   StageKind = "publish"
)

var knownKinds = []StageKind{StageResearch, StageSummarize, StageWrite, StageScore, StageEdit, StagePublish}

// Job is the record handed from stage to stage. Each stage fills in its own
// fields and leaves the rest alone.
type Job struct {
	SourceURL     string
	SourceContent string
	Source        *source.Document
	UserPrompt    string

	Summary  string
	Article  string
	Write    *generator.WriteResult
	RunID    string
	Verdict  *scoring.Verdict
	Critique string
	Metadata *generator.Metadata
	Receipt  *publisher.Receipt
}

// Prewritten reports whether the job carries a finished article rather than
// a source to write from.
func (j Job) Prewritten() bool {
	return j.SourceURL == "" && strings.TrimSpace(j.SourceContent) != ""
}

// Stage is one pipeline step.
type Stage interface {
	Kind() StageKind
	Process(ctx context.Context, job Job) (Job, error)
}

// Plan is an ordered list of stages.
type Plan []StageKind

func (p Plan) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

var (
	sourcePlan     = Plan{StageResearch, StageWrite, StageEdit, StagePublish}
	prewrittenPlan = Plan{StageScore, StageEdit, StagePublish}
	rewritePlan    = Plan{StageResearch, StageWrite}
)

// DefaultPlan picks the plan for a job: a URL is researched and written,
// a pre-written article is scored, edited and published.
func DefaultPlan(job Job) Plan {
	if job.Prewritten() {
		return prewrittenPlan
	}
	return sourcePlan
}

// ParsePlan reads a comma separated stage list such as "research,write".
func ParsePlan(s string) (Plan, error) {
	var plan Plan
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		kind := StageKind(part)
		if !isKnown(kind) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, part)
		}
		plan = append(plan, kind)
	}
	if len(plan) == 0 {
		return nil, errors.New("empty plan")
	}
	return plan, nil
}

func isKnown(kind StageKind) bool {
	for _, k := range knownKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Orchestrator dispatches jobs to registered stages.
type Orchestrator struct {
	stages map[StageKind]Stage
	logger *slog.Logger
}

func NewOrchestrator(logger *slog.Logger, stages ...Stage) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{stages: make(map[StageKind]Stage, len(stages)), logger: logger}
	for _, s := range stages {
		o.stages[s.Kind()] = s
	}
	return o
}

// Run executes plan in order. The first failing stage stops the run; the
// job as it stood before that stage is returned with the error.
func (o *Orchestrator) Run(ctx context.Context, plan Plan, job Job) (Job, error) {
	for _, kind := range plan {
		if _, ok := o.stages[kind]; !ok {
			return job, fmt.Errorf("%w: %s", ErrUnknownStage, kind)
		}
	}
	o.logger.Info("workflow starting", "plan", plan.String())
	for i, kind := range plan {
		if err := ctx.Err(); err != nil {
			return job, err
		}
		log := o.logger.With("step", i+1, "stage", string(kind))
		log.Info("stage starting")
		next, err := o.stages[kind].Process(ctx, job)
		if err != nil {
			log.Error("stage failed", "err", err)
			return job, fmt.Errorf("stage %s: %w", kind, err)
		}
		job = next
		log.Info("stage completed")
	}
	o.logger.Info("workflow complete")
	return job, nil
}
