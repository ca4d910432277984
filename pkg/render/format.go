// Package render 把助手的原始回复切分成可渲染的片段，并识别其中的邮件草稿。
package render

import (
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// SegmentKind 是片段类型。
type SegmentKind string

const (
	KindText      SegmentKind = "text"
	KindCode      SegmentKind = "code"       // 单反引号行内代码
	KindCodeBlock SegmentKind = "code_block" // 三反引号代码块
	KindLineBreak SegmentKind = "line_break"
)

const (
	fence    = "```"
	backtick = "`"
)

// Segment 是一个渲染片段。Text 不含分隔符。
type Segment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text,omitempty"`
	Lang string      `json:"lang,omitempty"`
	HTML string      `json:"html,omitempty"`
}

var (
	codeBlockPattern  = regexp.MustCompile("(?s)```(.*?)```")
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
)

// Format 依次按三反引号代码块、换行、单反引号行内代码切分文本。
// 不支持嵌套和转义，第一对未配对的 ``` 优先匹配。
func Format(text string) []Segment {
	var segments []Segment
	for i, part := range splitCaptures(codeBlockPattern, text) {
		if i%2 == 1 {
			segments = append(segments, Segment{Kind: KindCodeBlock, Text: part, Lang: blockLanguage(part)})
			continue
		}
		for j, line := range strings.Split(part, "\n") {
			if j > 0 {
				segments = append(segments, Segment{Kind: KindLineBreak})
			}
			for k, piece := range splitCaptures(inlineCodePattern, line) {
				switch {
				case k%2 == 1:
					segments = append(segments, Segment{Kind: KindCode, Text: piece})
				case piece != "":
					segments = append(segments, Segment{Kind: KindText, Text: piece})
				}
			}
		}
	}
	return segments
}

// Reconstruct 把分隔符放回去，得到 Format 的输入。
func Reconstruct(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Kind {
		case KindText:
			b.WriteString(s.Text)
		case KindCode:
			b.WriteString(backtick + s.Text + backtick)
		case KindCodeBlock:
			b.WriteString(fence + s.Text + fence)
		case KindLineBreak:
			b.WriteString("\n")
		}
	}
	return b.String()
}

// splitCaptures 的行为与 JS 中带捕获组的 String.prototype.split 一致：
// 返回值交替为 匹配外文本、捕获组内容、匹配外文本……
func splitCaptures(re *regexp.Regexp, s string) []string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	parts := make([]string, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		parts = append(parts, s[last:m[0]], s[m[2]:m[3]])
		last = m[1]
	}
	return append(parts, s[last:])
}

// blockLanguage 读取代码块首行的语言标记，chroma 不认识的返回空串。
func blockLanguage(block string) string {
	first, _, found := strings.Cut(block, "\n")
	if !found {
		return ""
	}
	name := strings.TrimSpace(first)
	if name == "" || strings.ContainsAny(name, " \t") {
		return ""
	}
	lexer := lexers.Get(name)
	if lexer == nil {
		return ""
	}
	return strings.ToLower(lexer.Config().Name)
}
