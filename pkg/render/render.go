package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"next-chatbot-go/internal/model"
)

// Rendered 是一条消息交给前端的渲染结果。
type Rendered struct {
	Segments []Segment          `json:"segments"`
	Email    *model.EmailParsed `json:"email,omitempty"`
}

var htmlFormatter = html.New(html.WithClasses(true), html.PreventSurroundingPre(true))

// Render 格式化一条消息。只有机器人消息才会识别邮件草稿和高亮代码块。
func Render(msg model.ChatMessage) Rendered {
	segments := Format(msg.Content)
	if msg.Role != model.RoleBot {
		return Rendered{Segments: segments}
	}
	for i := range segments {
		if segments[i].Kind == KindCodeBlock && segments[i].Lang != "" {
			segments[i].HTML = highlight(segments[i])
		}
	}
	out := Rendered{Segments: segments}
	if email, ok := DetectEmail(msg.Content); ok {
		out.Email = &email
	}
	return out
}

// highlight 用 chroma 生成带 class 的 HTML，失败时返回空串由前端按纯文本展示。
func highlight(seg Segment) string {
	lexer := lexers.Get(seg.Lang)
	if lexer == nil {
		return ""
	}
	lexer = chroma.Coalesce(lexer)
	_, code, _ := strings.Cut(seg.Text, "\n")

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	if err := htmlFormatter.Format(&buf, styles.Fallback, iterator); err != nil {
		return ""
	}
	return buf.String()
}
