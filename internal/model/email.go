package model

// EmailParsed 是从机器人回复中识别出的邮件草稿，每次渲染时重新计算，不持久化。
type EmailParsed struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
