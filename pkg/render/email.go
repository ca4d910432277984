package render

import (
	"regexp"
	"strings"

	"next-chatbot-go/internal/model"
)

// 与前端一致：\s* 可以跨行，(.*) 只取到行尾。
var subjectPattern = regexp.MustCompile(`(?i)Subject:\s*(.*)`)

// DetectEmail 判断回复是否像一封写好的邮件。
// 只使用第一处 "Subject:"；正文是匹配之后的全部文本。
func DetectEmail(text string) (model.EmailParsed, bool) {
	m := subjectPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return model.EmailParsed{}, false
	}
	subject := strings.TrimSpace(text[m[2]:m[3]])
	if subject == "" {
		return model.EmailParsed{}, false
	}
	return model.EmailParsed{
		Subject: subject,
		Body:    strings.TrimSpace(text[m[1]:]),
	}, true
}
