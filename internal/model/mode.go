package model

import "strings"

// Mode 是用户选择的对话类别，决定请求哪个后端接口。
type Mode string

const (
	ModeGeneral  Mode = "General"
	ModeGitHub   Mode = "GitHub"
	ModeEmail    Mode = "Email"
	ModeLinkedin Mode = "Linkedin"
)

// DefaultMode 是新客户端的初始模式。
const DefaultMode = ModeGeneral

// Modes 按展示顺序列出所有模式。
var Modes = []Mode{ModeGeneral, ModeGitHub, ModeEmail, ModeLinkedin}

// Valid 判断是否为已知模式。
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode 忽略大小写解析模式名，"LinkedIn" 和 "Linkedin" 都能识别。
func ParseMode(s string) (Mode, bool) {
	for _, known := range Modes {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	return Mode(s), false
}
