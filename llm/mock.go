package llm

import (
	"context"
	"strings"
)

// Mock 一个简单的占位实现，便于本地调试，不调用外部模型。
// 评分和元数据请求返回固定 JSON，其余请求回显第一个 --- 分隔块。
type Mock struct{}

const mockRubric = `{"overall_score": 0.6, "lead_quality": 0.6, "structure_score": 0.6,
"vocabulary_score": 0.6, "tone_score": 0.6, "attribution_score": 0.6,
"strengths": ["Plain text output"], "weaknesses": ["Offline mock response"],
"specific_feedback": "Mock provider: no real assessment was made.",
"revision_priorities": ["Configure a real language model"]}`

const mockMetadata = `{"title": "Mock headline", "seo_description": "Mock description",
"seo_keywords": "mock", "hashtags": ["#mock"], "abstract_value": "Mock abstract",
"byline_value": "staff writer", "daily_subject_value": "Political"}`

func (Mock) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch {
	case strings.Contains(prompt.User, `"overall_score"`):
		return mockRubric, nil
	case strings.Contains(prompt.User, `"seo_description"`):
		return mockMetadata, nil
	case strings.Contains(prompt.System, "comma-separated string"):
		return "", nil
	}
	body := prompt.User
	if i := strings.Index(body, "---\n"); i >= 0 {
		rest := body[i+4:]
		if j := strings.Index(rest, "\n---"); j >= 0 {
			body = rest[:j]
		}
	}
	return "Mock headline\n\n" + Truncate(strings.TrimSpace(body), 1500), nil
}

// Unavailable 在未配置凭据时代替真实客户端：每次调用都返回 Err，
// 评分器据此降级为中性分。
type Unavailable struct {
	Err error
}

func (u Unavailable) Complete(context.Context, Prompt) (string, error) {
	return "", u.Err
}
