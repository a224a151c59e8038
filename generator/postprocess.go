package generator

import (
	"errors"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// 常见的 markdown 痕迹：粗体/斜体、标题、列表、代码。
var markupRe = regexp.MustCompile("(?m)(\\*\\*|__|^#{1,6}\\s|^\\s*[*+-]\\s|`)")

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// PostProcess 清理模型输出：去首尾空白，残留 markdown 时转成纯文本段落。
func PostProcess(raw string) (string, error) {
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", errors.New("model returned an empty article")
	}
	if markupRe.MatchString(out) {
		out = StripMarkup(out)
	}
	return out, nil
}

// StripMarkup 用 goldmark 解析 markdown，只保留文字，块之间空一行。
func StripMarkup(md string) string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				sb.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				sb.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	out := blankRunRe.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out)
}
