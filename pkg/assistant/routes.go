package assistant

import "next-chatbot-go/internal/model"

// Route 描述某个模式对应的后端接口。
type Route struct {
	Path string
	// Identified 为 true 时请求体带 username 和 session_id。
	Identified bool
}

var routes = map[model.Mode]Route{
	model.ModeGeneral:  {Path: "/chat/ask", Identified: true},
	model.ModeGitHub:   {Path: "/github"},
	model.ModeEmail:    {Path: "/email/send"},
	model.ModeLinkedin: {Path: "/linkedin/connect"},
}

// FallbackRoute 用于无法识别的模式：走通用问答接口，但不带身份。
var FallbackRoute = Route{Path: "/chat/ask"}

// RouteFor 返回模式对应的接口。
func RouteFor(mode model.Mode) Route {
	if r, ok := routes[mode]; ok {
		return r
	}
	return FallbackRoute
}
