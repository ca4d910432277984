package model

// Identity 是登录时由身份提供方签发、浏览器转交给本服务的凭据。
// 只要存在就视为可用，本服务不校验也不刷新。
type Identity struct {
	IDToken string `json:"idToken"`
	Email   string `json:"email"`
	Image   string `json:"image,omitempty"`
}

// SignedIn 判断是否已登录。
func (i Identity) SignedIn() bool {
	return i.IDToken != "" && i.Email != ""
}
