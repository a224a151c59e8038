// Package framework reads the house style framework document and renders the
// condensed views used in drafting and scoring prompts.
package framework

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// DefaultPath is where the offline analysis step writes the framework.
const DefaultPath = "intellinews_style_framework.json"

// GenericGuidance replaces the framework context when none is available.
const GenericGuidance = "Write in a professional journalistic style."

// ErrNotFound reports that no framework file exists at the given path.
var ErrNotFound = errors.New("style framework not found")

// Framework is the versioned style document.
type Framework struct {
	Version          Text      `json:"version"`
	ArticlesAnalyzed int       `json:"articles_analyzed"`
	Rules            Rules     `json:"framework"`
	Examples         []Example `json:"example_articles"`
}

// Rules is the "framework" object of the document.
type Rules struct {
	CorePrinciples  []string        `json:"core_principles"`
	VocabularyGuide VocabularyGuide `json:"vocabulary_guide"`
	StyleNuances    []string        `json:"style_nuances"`
	LeadFormula     Lines           `json:"lead_formula"`
}

type VocabularyGuide struct {
	NeverUse []string `json:"never_use"`
	Prefer   []string `json:"prefer,omitempty"`
}

type Example struct {
	Title            string `json:"title"`
	OpeningParagraph string `json:"opening_paragraph"`
}

// Lines accepts either a JSON string or an array of strings.
type Lines []string

func (l *Lines) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Lines{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Text accepts a JSON string or number (versions appear as both).
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if string(data) == "null" {
		*t = ""
		return nil
	}
	*t = Text(data)
	return nil
}

// Load reads the framework at path. A missing file returns ErrNotFound.
func Load(path string) (*Framework, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read style framework: %w", err)
	}
	var fw Framework
	if err := json.Unmarshal(data, &fw); err != nil {
		return nil, fmt.Errorf("parse style framework %s: %w", path, err)
	}
	return &fw, nil
}

// LoadOptional is Load for callers that fall back to generic guidance: any
// failure is logged and yields nil.
func LoadOptional(path string, logger *slog.Logger) *Framework {
	fw, err := Load(path)
	if err != nil {
		if logger != nil {
			logger.Warn("style framework unavailable, using generic guidance", "path", path, "err", err)
		}
		return nil
	}
	if logger != nil {
		logger.Info("loaded style framework", "path", path, "version", string(fw.Version), "articles_analyzed", fw.ArticlesAnalyzed)
	}
	return fw
}

// WriterContext renders the framework section of drafting prompts. A nil
// framework yields GenericGuidance.
func (f *Framework) WriterContext() string {
	if f == nil {
		return GenericGuidance
	}
	var sb strings.Builder
	sb.WriteString("INTELLINEWS STYLE FRAMEWORK:\n")
	writeList(&sb, "CORE PRINCIPLES", "•", head(f.Rules.CorePrinciples, 8))
	writeList(&sb, "LEAD PARAGRAPH FORMULA", "•", f.Rules.LeadFormula)
	writeList(&sb, "NEVER USE THESE WORDS/PHRASES", "✗", head(f.Rules.VocabularyGuide.NeverUse, 15))
	writeList(&sb, "STYLE NUANCES", "•", head(f.Rules.StyleNuances, 8))

	if examples := head(f.Examples, 3); len(examples) > 0 {
		sb.WriteString("\nEXAMPLE OPENING PARAGRAPHS (study these carefully):\n")
		for i, ex := range examples {
			fmt.Fprintf(&sb, "\nExample %d: %s\n%s\n", i+1, ex.Title, ex.OpeningParagraph)
		}
	}
	return sb.String()
}

// RubricSummary is the condensed view sent with scoring requests.
func (f *Framework) RubricSummary() string {
	if f == nil {
		return GenericGuidance
	}
	return fmt.Sprintf("CORE PRINCIPLES: %s\nNEVER USE: %s\nSTYLE NUANCES: %s",
		strings.Join(head(f.Rules.CorePrinciples, 5), ", "),
		strings.Join(head(f.Rules.VocabularyGuide.NeverUse, 10), ", "),
		strings.Join(head(f.Rules.StyleNuances, 5), ", "))
}

func writeList(sb *strings.Builder, title, bullet string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "%s %s\n", bullet, it)
	}
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
