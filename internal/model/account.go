package model

import (
	"time"
)

// Account is a stored Steam account. Password, SharedSecret and Cookies are
// plaintext here; the repository handles encryption at rest.
type Account struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Password      string     `json:"-"`
	SharedSecret  string     `json:"-"`
	SteamID       string     `json:"steamId,omitempty"`
	Cookies       string     `json:"-"`
	LastCommentAt *time.Time `json:"lastCommentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasSteamID reports whether the account has completed at least one login.
func (a *Account) HasSteamID() bool {
	return a.SteamID != ""
}

// HoursSinceLastComment returns whole hours elapsed since the last comment,
// and false when the account has never commented.
func (a *Account) HoursSinceLastComment(now time.Time) (int, bool) {
	if a.LastCommentAt == nil {
		return 0, false
	}
	return int(now.Sub(*a.LastCommentAt).Hours()), true
}

type UpsertAccountParams struct {
	Username     string
	Password     string
	SharedSecret string
	SteamID      string
	Cookies      string
}

// AccountCredentials is one record of the bulk import file.
type AccountCredentials struct {
	Username     string
	Password     string
	SharedSecret string
}
