package middleware

import (
	"net/http"

	"github.com/rep4rep/steam-commenter/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
