package model

// SessionStatus is the outcome of one login attempt.
type SessionStatus int

const (
	SessionInactive SessionStatus = iota
	SessionNeedsEmailCode
	SessionNeedsMobileCode
	SessionNeedsCaptcha
	SessionLoggedIn
	SessionThrottled
)

func (s SessionStatus) String() string {
	switch s {
	case SessionInactive:
		return "inactive"
	case SessionNeedsEmailCode:
		return "needs_email_code"
	case SessionNeedsMobileCode:
		return "needs_mobile_code"
	case SessionNeedsCaptcha:
		return "needs_captcha"
	case SessionLoggedIn:
		return "logged_in"
	case SessionThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// IsInterrupt reports whether the status needs a caller-supplied value
// before the login can continue.
func (s SessionStatus) IsInterrupt() bool {
	switch s {
	case SessionNeedsEmailCode, SessionNeedsMobileCode, SessionNeedsCaptcha:
		return true
	}
	return false
}
