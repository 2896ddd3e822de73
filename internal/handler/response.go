package handler

import (
	"net/http"
	"time"

	"github.com/rep4rep/steam-commenter/internal/httputil"
	"github.com/rep4rep/steam-commenter/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// formatProfile renders an account without any secret material.
func formatProfile(acc model.Account, now time.Time) map[string]any {
	out := map[string]any{
		"username":      acc.Username,
		"steamId":       acc.SteamID,
		"lastCommentAt": formatTime(acc.LastCommentAt),
		"createdAt":     acc.CreatedAt.Format(time.RFC3339),
		"hasSession":    acc.Cookies != "",
		"ready":         true,
	}
	if hours, ok := acc.HoursSinceLastComment(now); ok && hours < 24 {
		out["ready"] = false
		out["hoursUntilReady"] = 24 - hours
	}
	return out
}
