package model

// SessionState is owned by a single login attempt and discarded once it
// resolves.
type SessionState struct {
	Status      SessionStatus
	EmailDomain string
	CaptchaURL  string
	CaptchaGID  string
	SteamID     string
	Cookies     string
}

func (s SessionState) LoggedIn() bool {
	return s.Status == SessionLoggedIn
}

// LoginInput carries the credentials and at most one interrupt response.
type LoginInput struct {
	Username     string
	Password     string
	SharedSecret string
	// EmailCode answers SessionNeedsEmailCode.
	EmailCode string
	// TwoFactorCode answers SessionNeedsMobileCode.
	TwoFactorCode string
	// CaptchaGID and CaptchaText answer SessionNeedsCaptcha.
	CaptchaGID  string
	CaptchaText string
	// CachedSession is a previously exported cookie set.
	CachedSession string
}
