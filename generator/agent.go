package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"newsroom_writer/llm"
)

// Agent 负责所有面向语言模型的写作/编辑调用，不做重试。
type Agent struct {
	llm llm.Client
}

func NewAgent(client llm.Client) (*Agent, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: client}, nil
}

// Draft 生成首稿。
func (a *Agent) Draft(ctx context.Context, fwContext string, req WriteRequest) (string, error) {
	return a.complete(ctx, "draft", BuildDraftPrompt(fwContext, req))
}

// Refine 根据评分反馈修订当前稿件。
func (a *Agent) Refine(ctx context.Context, fwContext string, req WriteRequest, current, feedback string) (string, error) {
	return a.complete(ctx, "refine", BuildRefinePrompt(fwContext, req, current, feedback))
}

// Summarize 压缩源材料。
func (a *Agent) Summarize(ctx context.Context, text string) (string, error) {
	out, err := a.llm.Complete(ctx, BuildSummaryPrompt(text))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Reflect 返回编辑对稿件的点评。
func (a *Agent) Reflect(ctx context.Context, draft, source string) (string, error) {
	out, err := a.llm.Complete(ctx, BuildReflectionPrompt(draft, source))
	if err != nil {
		return "", fmt.Errorf("reflect: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ReviseFromCritique 按点评重写稿件。
func (a *Agent) ReviseFromCritique(ctx context.Context, draft, critique string) (string, error) {
	return a.complete(ctx, "revise", BuildCritiqueRevisionPrompt(draft, critique))
}

// Metadata 生成 SEO 元数据，并在 opts 给出候选时补全分类。
func (a *Agent) Metadata(ctx context.Context, article string, opts Options) (Metadata, error) {
	raw, err := a.llm.Complete(ctx, BuildMetadataPrompt(article))
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata: %w", err)
	}
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return Metadata{}, errors.New("metadata: reply contains no JSON object")
	}
	var md Metadata
	if err := json.Unmarshal([]byte(body), &md); err != nil {
		return Metadata{}, fmt.Errorf("metadata: decode reply: %w", err)
	}

	if md.Countries, err = a.Select(ctx, "countries", opts.Countries, article); err != nil {
		return Metadata{}, err
	}
	if md.Publications, err = a.Select(ctx, "publications", opts.Publications, article); err != nil {
		return Metadata{}, err
	}
	if md.Industries, err = a.Select(ctx, "industries", opts.Industries, article); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Select 让模型从 options 中挑选；不在列表里的回答会被丢弃。
func (a *Agent) Select(ctx context.Context, kind string, options []string, article string) ([]string, error) {
	if len(options) == 0 {
		return nil, nil
	}
	if _, ok := selectionKinds[kind]; !ok {
		return nil, fmt.Errorf("unknown selection kind %q", kind)
	}
	raw, err := a.llm.Complete(ctx, BuildSelectionPrompt(kind, options, article))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind, err)
	}
	var picked []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.Trim(strings.TrimSpace(name), `"'[]`)
		if i := slices.IndexFunc(options, func(o string) bool { return strings.EqualFold(o, name) }); i >= 0 {
			if !slices.Contains(picked, options[i]) {
				picked = append(picked, options[i])
			}
		}
	}
	return picked, nil
}

func (a *Agent) complete(ctx context.Context, op string, prompt llm.Prompt) (string, error) {
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	out, err := PostProcess(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
