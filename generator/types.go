package generator

import (
	"errors"
	"time"
)

// ErrNoSourceContent 表示没有可供写作的源材料。
var ErrNoSourceContent = errors.New("no source content provided")

// DefaultUserPrompt 在调用方未给出指令时使用。
const DefaultUserPrompt = "Write a news article"

// WriteRequest describes one article to write.
type WriteRequest struct {
	SourceContent string
	UserPrompt    string
	// SourceLanguage 为检测到的源语言名（如 "Russian"），空或 English 不提示。
	SourceLanguage string
}

// IterationRecord 记录一轮 写作→评分 的完整状态，生成后不再修改。
type IterationRecord struct {
	Iteration int       `json:"iteration"`
	Article   string    `json:"article"`
	Score     float64   `json:"score"`
	Feedback  string    `json:"feedback"`
	Passes    bool      `json:"passes"`
	CreatedAt time.Time `json:"created_at"`
}

// WriteResult is the terminal output of one IterativeWriter.Invoke.
type WriteResult struct {
	FinalArticle string            `json:"final_article"`
	Score        float64           `json:"score"`
	Iterations   int               `json:"iterations"`
	History      []IterationRecord `json:"history"`
	Success      bool              `json:"success"`
	Message      string            `json:"message,omitempty"`
}

// LastFeedback returns the feedback of the final round, if any.
func (r WriteResult) LastFeedback() string {
	if len(r.History) == 0 {
		return ""
	}
	return r.History[len(r.History)-1].Feedback
}

// State is a step of the write/score/refine loop.
type State int

const (
	StateDrafting State = iota
	StateScoring
	StateRefining
	StateAccepted
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDrafting:
		return "DRAFTING"
	case StateScoring:
		return "SCORING"
	case StateRefining:
		return "REFINING"
	case StateAccepted:
		return "ACCEPTED"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the loop stops in this state.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateExhausted
}

// Metadata 是编辑阶段为 CMS 生成的结构化字段。
type Metadata struct {
	Title              string   `json:"title"`
	SEODescription     string   `json:"seo_description"`
	SEOKeywords        string   `json:"seo_keywords"`
	Hashtags           []string `json:"hashtags"`
	WeeklyTitle        string   `json:"weekly_title_value"`
	WebsiteCallout     string   `json:"website_callout_value"`
	SocialCallout      string   `json:"social_media_callout_value"`
	Abstract           string   `json:"abstract_value"`
	GoogleNewsKeywords string   `json:"google_news_keywords_value"`
	DailySubject       string   `json:"daily_subject_value"`
	KeyPoint           string   `json:"key_point_value"`
	MachineWritten     string   `json:"machine_written_value"`
	Byline             string   `json:"byline_value"`
	BallotBox          string   `json:"ballot_box_value"`

	// 以下由单独的选择请求填充
	Countries    []string `json:"countries,omitempty"`
	Publications []string `json:"publications,omitempty"`
	Industries   []string `json:"industries,omitempty"`
}

// Options are the CMS taxonomies an article may be tagged with.
type Options struct {
	Countries    []string
	Publications []string
	Industries   []string
}
