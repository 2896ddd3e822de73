package model

// CommentAvailability is how many comments an account may still post in
// the rolling 24 hour window.
type CommentAvailability struct {
	Username  string `json:"username"`
	SteamID   string `json:"steamId"`
	Posted    int    `json:"posted"`
	Available int    `json:"available"`
}
