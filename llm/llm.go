package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredentials 表示未配置模型凭据（api key）。
var ErrNoCredentials = errors.New("no credentials available")

// Client 抽象大模型客户端，便于替换/Mock。
type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Prompt 表示发送给 LLM 的消息集合：system + 可选历史 + 当前 user。
type Prompt struct {
	System  string
	User    string
	History []Message
	// Temperature 为 nil 时使用模型默认值。
	Temperature *float64
}

// Message 对应一条 {role, content}。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Messages 按发送顺序展开为 role/content 列表。
func (p Prompt) Messages() []Message {
	msgs := make([]Message, 0, len(p.History)+2)
	if p.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: p.System})
	}
	for _, h := range p.History {
		role := h.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, Message{Role: role, Content: h.Content})
	}
	return append(msgs, Message{Role: "user", Content: p.User})
}

// Settings 提供给具体实现的基础配置。
type Settings struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// New 根据 provider 构造客户端。
func New(cfg Settings) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.BaseURL == "" {
			return nil, errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return NewOpenAI(cfg)
	case "mock":
		return Mock{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

// Float 返回 v 的指针，便于设置 Prompt.Temperature。
func Float(v float64) *float64 { return &v }

// Truncate 按字符（rune）截断到 limit。
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// ExtractJSON 从模型输出中取出 JSON 对象文本：
// 先去掉 ```json 围栏，否则取第一个括号配平的 {...} 块。
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s, true
	}
	return firstObject(s)
}

func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
