package scoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ComponentScores are the five rubric dimensions, each in [0, 1].
type ComponentScores struct {
	LeadQuality float64 `json:"lead_quality"`
	Structure   float64 `json:"structure"`
	Vocabulary  float64 `json:"vocabulary"`
	Tone        float64 `json:"tone"`
	Attribution float64 `json:"attribution"`
}

// Assessment is the structured rubric result. Feedback is its rendered report.
type Assessment struct {
	Overall    float64         `json:"overall"`
	Components ComponentScores `json:"components"`
	Strengths  []string        `json:"strengths,omitempty"`
	Weaknesses []string        `json:"weaknesses,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	Priorities []string        `json:"priorities,omitempty"`
	Feedback   string          `json:"feedback"`
	Degraded   bool            `json:"degraded"`
}

// 标签和 "x.xx/1.00" 后缀是下游按正则抽取的格式，不能改。
var componentLabels = []struct {
	label string
	field func(*ComponentScores) *float64
}{
	{"Lead Quality", func(c *ComponentScores) *float64 { return &c.LeadQuality }},
	{"Structure", func(c *ComponentScores) *float64 { return &c.Structure }},
	{"Vocabulary", func(c *ComponentScores) *float64 { return &c.Vocabulary }},
	{"Tone", func(c *ComponentScores) *float64 { return &c.Tone }},
	{"Attribution", func(c *ComponentScores) *float64 { return &c.Attribution }},
}

var componentPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(componentLabels))
	for i, cl := range componentLabels {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cl.label) + `:\s*([\d.]+)/`)
	}
	return out
}()

// Render formats the assessment as the fixed human-readable report.
func (a Assessment) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nOVERALL SCORE: %.2f/1.00\n", a.Overall)
	sb.WriteString("COMPONENT SCORES:\n")
	c := a.Components
	for _, cl := range componentLabels {
		fmt.Fprintf(&sb, "  %-16s %.2f/1.00\n", cl.label+":", *cl.field(&c))
	}
	sb.WriteString("STRENGTHS:\n")
	for _, s := range a.Strengths {
		fmt.Fprintf(&sb, "  ✓ %s\n", s)
	}
	sb.WriteString("\nWEAKNESSES:\n")
	for _, w := range a.Weaknesses {
		fmt.Fprintf(&sb, "  ✗ %s\n", w)
	}
	fmt.Fprintf(&sb, "\nDETAILED FEEDBACK:\n%s\n", a.Detail)
	sb.WriteString("\nREVISION PRIORITIES:\n")
	for i, p := range a.Priorities {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, p)
	}
	return sb.String()
}

// ParseComponentScores pulls the five component scores back out of a rendered
// report (or any text embedding one). ok is false if any label is missing.
func ParseComponentScores(feedback string) (ComponentScores, bool) {
	var c ComponentScores
	ok := true
	for i, re := range componentPatterns {
		m := re.FindStringSubmatch(feedback)
		if m == nil {
			ok = false
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			ok = false
			continue
		}
		*componentLabels[i].field(&c) = v
	}
	return c, ok
}
